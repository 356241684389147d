package driven

import "time"

// IdentityTokens mints and verifies bearer tokens binding an API caller
// to a wallet identity. Token possession only proves the caller was
// issued the token for that address; ownership mutations are still
// re-checked by the ledger.
type IdentityTokens interface {
	// Mint issues a signed token for the identity, valid for ttl.
	Mint(identity string, ttl time.Duration) (string, error)

	// Verify validates a token and returns the bound identity.
	Verify(token string) (string, error)
}
