package directory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// UsernameKind identifies which of the three accepted login formats was used
type UsernameKind uint8

const (
	UsernamePlain UsernameKind = iota
	UsernameUPN
	UsernameDomainQualified
)

// ParsedUsername is the normalized form of a user-supplied login name.
// Account is the sAMAccountName lookup value; UPN is only set for
// user@domain input.
type ParsedUsername struct {
	Kind    UsernameKind
	Account string
	Domain  string
	UPN     string
}

// ParseUsername normalizes the three input shapes a directory login accepts:
// DOMAIN\user, user@domain, and a plain account name.
func ParseUsername(raw string) ParsedUsername {
	raw = strings.TrimSpace(raw)

	if i := strings.Index(raw, `\`); i >= 0 {
		return ParsedUsername{
			Kind:    UsernameDomainQualified,
			Domain:  raw[:i],
			Account: raw[i+1:],
		}
	}

	if i := strings.Index(raw, "@"); i > 0 {
		return ParsedUsername{
			Kind:    UsernameUPN,
			Account: raw[:i],
			Domain:  raw[i+1:],
			UPN:     raw,
		}
	}

	return ParsedUsername{Kind: UsernamePlain, Account: raw}
}

// SearchFilter builds the LDAP filter locating the user's entry. UPN-style
// input also matches on userPrincipalName because the local part of a UPN is
// not guaranteed to equal the sAMAccountName.
func (p ParsedUsername) SearchFilter() string {
	account := ldap.EscapeFilter(p.Account)

	if p.Kind == UsernameUPN {
		return fmt.Sprintf("(&(objectClass=user)(|(sAMAccountName=%s)(userPrincipalName=%s)))",
			account, ldap.EscapeFilter(p.UPN))
	}

	return fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", account)
}
