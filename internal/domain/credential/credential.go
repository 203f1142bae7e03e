package credential

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// refreshWindow is how close to expiry a token is still treated as expired,
// so a refresh happens before an in-flight sync run can outlive the token.
const refreshWindow = time.Hour

// Credential is a merchant's SumUp OAuth credential record. Token and secret
// fields hold encrypted envelopes (see the vault package); a small number of
// legacy rows still hold plaintext, which the vault degrades to transparently.
type Credential struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	MerchantCode   string
	ClientID       string
	ClientSecret   string // Encrypted
	AccessToken    string // Encrypted
	RefreshToken   string // Encrypted
	TokenExpiresAt *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NeedsRefresh reports whether the stored access token must be refreshed
// before use. A missing expiry is treated as expired.
func (c *Credential) NeedsRefresh(now time.Time) bool {
	if c.TokenExpiresAt == nil {
		return true
	}
	return !c.TokenExpiresAt.After(now.Add(refreshWindow))
}

// ErrCredentialNotFound indicates no active credential exists for the lookup
type ErrCredentialNotFound struct {
	OrganizationID uuid.UUID
}

func (e ErrCredentialNotFound) Error() string {
	return fmt.Sprintf("no active merchant credential for organization %s", e.OrganizationID)
}
