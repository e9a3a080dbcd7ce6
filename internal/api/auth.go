package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskcal/internal/domain"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute
)

// Auth validates incoming JWT bearer tokens. Remote mode verifies RS256
// tokens against a JWKS; local mode verifies HS256 tokens with a shared
// secret.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string

	parser      *jwt.Parser
	keyFunc     jwt.Keyfunc
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth verifying RS256 tokens from jwks. A non-positive
// cacheTTL uses the default key cache lifetime.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, cacheTTL time.Duration) *Auth {
	if cacheTTL <= 0 {
		cacheTTL = defaultJWKSCacheTTL
	}
	a := &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: cacheTTL,
	}
	a.keyFunc = a.keyForToken
	return a
}

// NewLocalAuth creates an Auth verifying HS256 tokens signed with secret.
func NewLocalAuth(secret []byte) *Auth {
	if len(secret) == 0 {
		panic("api.NewLocalAuth: empty secret")
	}
	return &Auth{
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		keyFunc: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return secret, nil
		},
	}
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization
// header. Every failure is reported as domain.ErrUnauthorized.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", domain.Unauthorized(errMissingAuthorization)
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", domain.Unauthorized(err)
	}
	sub, err := a.UserIDFromBearer(token)
	if err != nil {
		return "", domain.Unauthorized(err)
	}
	return sub, nil
}

// UserIDFromBearer verifies a raw bearer token and returns its subject.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}
	parsed, err := a.parser.Parse(readOnlyString(token), a.keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	if err := a.checkClaims(claims, time.Now().Add(clockSkew).Unix()); err != nil {
		return "", err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

// checkClaims applies the time window and the optional audience and
// issuer restrictions. exp is mandatory.
func (a *Auth) checkClaims(claims jwt.MapClaims, now int64) error {
	rules := []struct {
		ok  bool
		err string
	}{
		{claims.VerifyExpiresAt(now, true), "token expired"},
		{claims.VerifyNotBefore(now, false), "token not valid yet"},
		{claims.VerifyIssuedAt(now, false), "token used before issued"},
		{a.Audience == "" || claims.VerifyAudience(a.Audience, false), "invalid audience"},
		{a.Issuer == "" || claims.VerifyIssuer(a.Issuer, false), "invalid issuer"},
	}
	for _, r := range rules {
		if !r.ok {
			return errors.New(r.err)
		}
	}
	return nil
}

// keyForToken resolves the RS256 verification key by kid, caching hits.
func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return a.JWKS.Keyfunc(token)
	}
	if v, ok := a.keyCache.Load(kid); ok {
		if entry := v.(cachedKey); time.Now().Before(entry.expiresAt) {
			return entry.key, nil
		}
		a.keyCache.Delete(kid)
	}
	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	return key, nil
}
