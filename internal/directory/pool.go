package directory

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/castellanhq/castellan/internal/config"
	"github.com/go-ldap/ldap/v3"
)

const healthCheckTimeLimit = 5 // seconds

// ldapConn is the subset of *ldap.Conn the pool and client depend on
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Unbind() error
	Close() error
	SetTimeout(time.Duration)
}

type dialFunc func(cfg *config.DirectoryConfig) (ldapConn, error)

// Connection wraps one session bound as the service account. While idle it is
// owned exclusively by the pool; while checked out, by exactly one caller.
type Connection struct {
	conn      ldapConn
	boundAs   string
	createdAt time.Time
}

// unbind tears the session down. Unbind closes the underlying socket; Close
// is the fallback when the session is already in a bad state.
func (c *Connection) unbind() {
	if err := c.conn.Unbind(); err != nil {
		_ = c.conn.Close()
	}
}

// ConnectionPool manages a bounded set of idle service-account sessions.
// Exclusivity is per connection: acquiring one connection never blocks the
// acquisition of another.
type ConnectionPool struct {
	cfg    *config.DirectoryConfig
	dial   dialFunc
	logger *slog.Logger

	mu   sync.Mutex
	idle []*Connection
}

func NewConnectionPool(cfg *config.DirectoryConfig, logger *slog.Logger) *ConnectionPool {
	return &ConnectionPool{
		cfg:    cfg,
		dial:   dialDirectory,
		logger: logger,
	}
}

// Acquire returns a validated connection: an idle one that passes a cheap
// health check, or a freshly dialed and bound one. An invalid-credentials
// result during validation flushes the whole pool before dialing fresh; a
// poisoned service credential must not be retried piecemeal.
func (p *ConnectionPool) Acquire(ctx context.Context) (*Connection, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn := p.popIdle()
		if conn == nil {
			break
		}

		err := p.healthCheck(conn)
		if err == nil {
			return conn, nil
		}

		conn.unbind()

		if Classify(err) == KindInvalidCredentials {
			p.logger.Warn("service account rejected during health check, flushing connection pool")
			p.Flush()
			break
		}

		p.logger.Debug("discarding unhealthy directory connection", slog.Any("error", err))
	}

	return p.newConnection()
}

// Release returns a connection to the idle set, or unbinds it immediately if
// the pool is at capacity. Returns are never queued.
func (p *ConnectionPool) Release(conn *Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if len(p.idle) < p.cfg.MaxConnections {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	conn.unbind()
}

// Flush unbinds every idle connection. Called on detection of a service
// credential error and on shutdown.
func (p *ConnectionPool) Flush() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, conn := range idle {
		conn.unbind()
	}

	if len(idle) > 0 {
		p.logger.Info("directory connection pool flushed", slog.Int("connections", len(idle)))
	}
}

// IdleCount reports the number of idle pooled connections.
func (p *ConnectionPool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *ConnectionPool) Close() {
	p.Flush()
}

func (p *ConnectionPool) popIdle() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) == 0 {
		return nil
	}

	conn := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return conn
}

// healthCheck validates a pooled connection with a minimal base-scope search.
func (p *ConnectionPool) healthCheck(conn *Connection) error {
	req := ldap.NewSearchRequest(
		p.cfg.BaseDN,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, healthCheckTimeLimit, false,
		"(objectClass=*)",
		[]string{"1.1"},
		nil,
	)

	_, err := conn.conn.Search(req)
	return err
}

// newConnection dials and binds a fresh service-account session. Bind
// failures propagate to the caller.
func (p *ConnectionPool) newConnection() (*Connection, error) {
	conn, err := p.dial(p.cfg)
	if err != nil {
		return nil, err
	}

	if err := conn.Bind(p.cfg.BindDN, p.cfg.BindPassword); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Connection{
		conn:      conn,
		boundAs:   p.cfg.BindDN,
		createdAt: time.Now(),
	}, nil
}

// dialDirectory opens a connection per the configured URL scheme. StartTLS is
// only applied on plain ldap://; ldaps:// negotiates TLS from the start.
func dialDirectory(cfg *config.DirectoryConfig) (ldapConn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.ConnectTimeout}),
	}

	if strings.HasPrefix(cfg.URL, "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig(cfg)))
	}

	conn, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.StartTLS && strings.HasPrefix(cfg.URL, "ldap://") {
		if err := conn.StartTLS(tlsConfig(cfg)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	conn.SetTimeout(cfg.ReadTimeout)
	return conn, nil
}

func tlsConfig(cfg *config.DirectoryConfig) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
}
