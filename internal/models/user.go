package models

// userAccountControl bit flag for a disabled Active Directory account
const adAccountDisabledFlag = 0x2

// DirectoryUser represents a user entry resolved from the directory
type DirectoryUser struct {
	Username          string   `json:"username"`
	DistinguishedName string   `json:"distinguished_name"`
	DisplayName       string   `json:"display_name"`
	Email             string   `json:"email"`
	UserPrincipalName string   `json:"user_principal_name"`
	Groups            []string `json:"groups,omitempty"`
	AccountControl    int      `json:"-"`
}

// Enabled reports whether the account is active in the directory.
// Entries without a userAccountControl attribute are treated as enabled.
func (u *DirectoryUser) Enabled() bool {
	return u.AccountControl&adAccountDisabledFlag == 0
}
