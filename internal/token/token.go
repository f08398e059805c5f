package token

import (
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/Wynand91/fedauth/internal/domain"
)

// Pair is the access/refresh token pair delivered to frontend clients through
// the short-lived code exchange.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims carries the custom JWT payload for locally issued tokens.
type Claims struct {
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	TokenUse    string `json:"token_use"`
}

// Generator signs and validates the service's own JWTs with the process-wide
// secret key (HS256).
type Generator struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewGenerator constructs a token generator.
func NewGenerator(key []byte, issuer string, accessTTL, refreshTTL time.Duration) *Generator {
	return &Generator{key: key, issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// GeneratePair produces a signed access/refresh pair for the user.
func (g *Generator) GeneratePair(user domain.User) (Pair, error) {
	access, err := g.sign(user, "access", g.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := g.sign(user, "refresh", g.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (g *Generator) sign(user domain.User, use string, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: g.key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := Claims{
		Email:       user.Email,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
		TokenUse:    use,
	}

	return gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
}

// ValidateAccess parses and verifies an access token, returning its claims.
func (g *Generator) ValidateAccess(raw string) (*gojwt.Claims, *Claims, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom Claims
	if err := parsed.Claims(g.key, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}
	if err := std.Validate(gojwt.Expected{Issuer: g.issuer, Time: time.Now()}); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}
	if custom.TokenUse != "access" {
		return nil, nil, fmt.Errorf("token is not an access token")
	}
	return &std, &custom, nil
}
