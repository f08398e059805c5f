package domain

import "time"

// Sign algorithms accepted for provider records.
const (
	AlgoHS256 = "HS256"
	AlgoRS256 = "RS256"
	AlgoES256 = "ES256"
)

// ValidSignAlgo reports whether algo is one of the supported choices.
func ValidSignAlgo(algo string) bool {
	switch algo {
	case AlgoHS256, AlgoRS256, AlgoES256:
		return true
	}
	return false
}

// ProviderConfig holds the OIDC endpoints and relying-party credentials shared
// by both registry partitions. The client secret only ever exists here as
// ciphertext; decryption happens in the settings resolver on read.
type ProviderConfig struct {
	AuthEndpoint       string
	TokenEndpoint      string
	UserEndpoint       string
	JWKSEndpoint       string
	ClientID           string
	ClientSecretCipher []byte
	SignAlgo           string
	Scopes             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FederatedProvider is a provider record keyed by an organization's email
// domain ("bob@acme.com" logs in through the record with Domain "acme.com").
type FederatedProvider struct {
	Domain string
	ProviderConfig
}

// GenericProvider is a provider record keyed by a named alias ("log in with
// okta" style logins).
type GenericProvider struct {
	Alias string
	ProviderConfig
}

// Field returns the value of a ProviderConfig field by its record field name,
// as used by the settings name-translation table. The client secret is not
// addressable here; resolving it requires the cipher.
func (p ProviderConfig) Field(name string) (string, bool) {
	switch name {
	case "auth_endpoint":
		return p.AuthEndpoint, p.AuthEndpoint != ""
	case "token_endpoint":
		return p.TokenEndpoint, p.TokenEndpoint != ""
	case "user_endpoint":
		return p.UserEndpoint, p.UserEndpoint != ""
	case "jwks_endpoint":
		return p.JWKSEndpoint, p.JWKSEndpoint != ""
	case "client_id":
		return p.ClientID, p.ClientID != ""
	case "sign_algo":
		return p.SignAlgo, p.SignAlgo != ""
	case "scopes":
		return p.Scopes, p.Scopes != ""
	}
	return "", false
}
