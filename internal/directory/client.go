package directory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/castellanhq/castellan/internal/config"
	"github.com/castellanhq/castellan/internal/models"
	"github.com/go-ldap/ldap/v3"
)

const (
	defaultSizeLimit = 1000
	defaultTimeLimit = 30 * time.Second

	// retries after the pooled session turned out to be unbound mid-use
	maxStaleConnRetries = 2
)

// userAttributes are requested when resolving a full user entry
var userAttributes = []string{
	"sAMAccountName",
	"displayName",
	"mail",
	"userPrincipalName",
	"userAccountControl",
	"memberOf",
}

// SearchOptions describes a caller-supplied directory search. Zero values
// take the defaults: whole-subtree scope from the configured base DN, size
// limit 1000, time limit 30s.
type SearchOptions struct {
	BaseDN     string
	Filter     string
	Scope      string // "base", "one", or "sub"
	Attributes []string
	SizeLimit  int
	TimeLimit  time.Duration
}

// Client exposes the directory operations the authentication path consumes.
// Service-account searches run on the connection pool; end-user credential
// binds always use a dedicated, unpooled session.
type Client struct {
	cfg    *config.DirectoryConfig
	pool   *ConnectionPool
	dial   dialFunc
	logger *slog.Logger
}

func NewClient(cfg *config.DirectoryConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		pool:   NewConnectionPool(cfg, logger),
		dial:   dialDirectory,
		logger: logger,
	}
}

// Pool returns the underlying connection pool.
func (c *Client) Pool() *ConnectionPool {
	return c.pool
}

func (c *Client) Close() {
	c.pool.Close()
}

// Search executes a pooled search. If the session was unbound between the
// health check and use, the operation is retried on a freshly acquired
// connection; any other error aborts immediately. A checked-out connection is
// never leaked: it is either returned to the pool or torn down.
func (c *Client) Search(ctx context.Context, opts SearchOptions) ([]*ldap.Entry, error) {
	req, err := c.buildSearchRequest(opts)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxStaleConnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, err := c.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		res, err := conn.conn.Search(req)
		if err == nil {
			c.pool.Release(conn)
			return res.Entries, nil
		}

		// The session is suspect after a failed operation; discard it
		// rather than returning it to the idle set.
		conn.unbind()

		if Classify(err) != KindConnClosed {
			return nil, err
		}

		lastErr = err
		c.logger.Debug("pooled directory session was closed mid-use, retrying",
			slog.Int("attempt", attempt+1))
	}

	return nil, lastErr
}

// Authenticate verifies end-user credentials: the entry is located with a
// pooled service-account search, then a separate unpooled bind is attempted
// with the entry's DN and the supplied password. All failures resolve to
// false; infrastructure errors are logged but never surfaced, so a caller
// cannot distinguish them from a wrong password at this layer.
func (c *Client) Authenticate(ctx context.Context, username, password string) bool {
	if strings.TrimSpace(username) == "" || password == "" {
		// an empty password would be an unauthenticated bind, which many
		// servers accept
		return false
	}

	parsed := ParseUsername(username)

	entries, err := c.Search(ctx, SearchOptions{
		Filter:     parsed.SearchFilter(),
		Attributes: []string{"dn"},
		SizeLimit:  2,
	})
	if err != nil {
		c.logger.Error("directory search failed during authentication", slog.Any("error", err))
		return false
	}

	if len(entries) == 0 {
		return false
	}

	conn, err := c.dial(c.cfg)
	if err != nil {
		c.logger.Error("failed to open connection for credential bind", slog.Any("error", err))
		return false
	}
	defer conn.Close()

	if err := conn.Bind(entries[0].DN, password); err != nil {
		if Classify(err) != KindInvalidCredentials {
			c.logger.Error("unexpected error during credential bind", slog.Any("error", err))
		}
		return false
	}

	return true
}

// GetUser resolves a user entry by any accepted username format. Absent
// entries map to models.ErrNotFound.
func (c *Client) GetUser(ctx context.Context, username string) (*models.DirectoryUser, error) {
	parsed := ParseUsername(username)

	entries, err := c.Search(ctx, SearchOptions{
		Filter:     parsed.SearchFilter(),
		Attributes: userAttributes,
		SizeLimit:  1,
	})
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, models.ErrNotFound
	}

	return entryToUser(entries[0]), nil
}

// GetUserGroups returns the common names of the groups the user belongs to.
func (c *Client) GetUserGroups(ctx context.Context, username string) ([]string, error) {
	parsed := ParseUsername(username)

	entries, err := c.Search(ctx, SearchOptions{
		Filter:     parsed.SearchFilter(),
		Attributes: []string{"memberOf"},
		SizeLimit:  1,
	})
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, models.ErrNotFound
	}

	return groupNames(entries[0].GetAttributeValues("memberOf")), nil
}

// TestConnection probes reachability with a throwaway client and short
// timeouts, independent of the pool. A rejected service bind still means the
// server answered, so bad credentials and busy/unwilling responses count as
// reachable; transport failures do not.
func (c *Client) TestConnection(ctx context.Context) bool {
	probeCfg := *c.cfg
	probeCfg.ConnectTimeout = c.cfg.ProbeTimeout
	probeCfg.ReadTimeout = c.cfg.ProbeTimeout

	conn, err := c.dial(&probeCfg)
	if err != nil {
		c.logger.Warn("directory unreachable", slog.Any("error", err))
		return false
	}
	defer conn.Close()

	err = conn.Bind(c.cfg.BindDN, c.cfg.BindPassword)
	if err == nil {
		return true
	}

	switch Classify(err) {
	case KindInvalidCredentials, KindServerUnavailable:
		return true
	case KindNetwork, KindConnClosed:
		c.logger.Warn("directory unreachable", slog.Any("error", err))
		return false
	default:
		c.logger.Error("unclassified error during connection probe", slog.Any("error", err))
		return false
	}
}

func (c *Client) buildSearchRequest(opts SearchOptions) (*ldap.SearchRequest, error) {
	baseDN := opts.BaseDN
	if baseDN == "" {
		baseDN = c.cfg.BaseDN
	}

	scope := ldap.ScopeWholeSubtree
	switch opts.Scope {
	case "", "sub":
	case "base":
		scope = ldap.ScopeBaseObject
	case "one":
		scope = ldap.ScopeSingleLevel
	default:
		return nil, models.ErrBadRequest
	}

	sizeLimit := opts.SizeLimit
	if sizeLimit == 0 {
		sizeLimit = defaultSizeLimit
	}

	timeLimit := opts.TimeLimit
	if timeLimit == 0 {
		timeLimit = defaultTimeLimit
	}

	return ldap.NewSearchRequest(
		baseDN,
		scope, ldap.NeverDerefAliases, sizeLimit, int(timeLimit.Seconds()), false,
		opts.Filter,
		opts.Attributes,
		nil,
	), nil
}

func entryToUser(entry *ldap.Entry) *models.DirectoryUser {
	accountControl, _ := strconv.Atoi(entry.GetAttributeValue("userAccountControl"))

	return &models.DirectoryUser{
		Username:          entry.GetAttributeValue("sAMAccountName"),
		DistinguishedName: entry.DN,
		DisplayName:       entry.GetAttributeValue("displayName"),
		Email:             entry.GetAttributeValue("mail"),
		UserPrincipalName: entry.GetAttributeValue("userPrincipalName"),
		Groups:            groupNames(entry.GetAttributeValues("memberOf")),
		AccountControl:    accountControl,
	}
}

// groupNames extracts the leading CN from each group DN, falling back to the
// raw DN when it does not parse.
func groupNames(memberOf []string) []string {
	names := make([]string, 0, len(memberOf))
	for _, groupDN := range memberOf {
		names = append(names, commonName(groupDN))
	}
	return names
}

func commonName(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return dn
	}

	rdn := parsed.RDNs[0].Attributes[0]
	if !strings.EqualFold(rdn.Type, "CN") {
		return dn
	}
	return rdn.Value
}
