package directory

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-ldap/ldap/v3"
)

// ErrorKind is the closed set of failure classes the directory layer branches
// on. Raw LDAP result codes and OS error numbers are resolved here, once, at
// the protocol boundary; business logic never inspects them directly.
type ErrorKind uint8

const (
	// KindUnknown covers anything not explicitly classified below.
	KindUnknown ErrorKind = iota

	// KindInvalidCredentials is an LDAP bind rejection (result code 49).
	KindInvalidCredentials

	// KindServerUnavailable means the server answered but refused the
	// operation (busy, unavailable, unwilling to perform).
	KindServerUnavailable

	// KindConnClosed means the session was unbound or closed underneath the
	// caller. Operations hitting this are safe to retry on a fresh session.
	KindConnClosed

	// KindNetwork is a transport-level failure: refused, reset, timed out,
	// unresolvable, or unreachable.
	KindNetwork
)

// Classify resolves an error from an LDAP operation into an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var lerr *ldap.Error
	if errors.As(err, &lerr) {
		switch lerr.ResultCode {
		case ldap.LDAPResultInvalidCredentials:
			return KindInvalidCredentials
		case ldap.LDAPResultBusy, ldap.LDAPResultUnavailable, ldap.LDAPResultUnwillingToPerform:
			return KindServerUnavailable
		case ldap.ErrorNetwork:
			// The library reports both a reused dead session and a genuine
			// socket failure as network errors; only the former is retryable
			// on a fresh connection.
			if lerr.Err != nil && strings.Contains(lerr.Err.Error(), "connection closed") {
				return KindConnClosed
			}
			return KindNetwork
		}
		return KindUnknown
	}

	if isTransportError(err) {
		return KindNetwork
	}

	return KindUnknown
}

// isTransportError reports whether err indicates the server never answered:
// DNS failure, dial timeout, or a socket-level error.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.ETIMEDOUT,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	return errors.Is(err, io.EOF)
}
