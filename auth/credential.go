package auth

import (
	"net/http"
	"strings"

	"nexchat/contract"
	"nexchat/domain"
	"nexchat/errors"
)

// CookieName is used both for the session cookie and the query parameter
// fallback of the websocket handshake.
const CookieName = "token"

// ExtractTokens collects the credentials a browser or a CLI can set on a
// request, in the order they are tried: the token cookie, the token query
// parameter, then an Authorization: Bearer header.
func ExtractTokens(r *http.Request) []string {
	var tokens []string
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	if q := r.URL.Query().Get(CookieName); q != "" {
		tokens = append(tokens, q)
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Authenticate returns the identity of the first credential that verifies.
// A stale cookie does not hide a valid bearer header.
func Authenticate(r *http.Request, verifier contract.TokenVerifier) (domain.Identity, error) {
	tokens := ExtractTokens(r)
	if len(tokens) == 0 {
		return domain.Identity{}, errors.ErrMissingToken
	}
	err := errors.ErrInvalidToken
	for _, token := range tokens {
		identity, verifyErr := verifier.Verify(token)
		if verifyErr != nil {
			err = verifyErr
			continue
		}
		if !identity.Valid() {
			err = errors.ErrInvalidToken
			continue
		}
		return identity, nil
	}
	return domain.Identity{}, err
}

// SessionCookie builds the cookie that carries the token after login.
// An empty token with maxAge < 0 clears it.
func SessionCookie(token string, maxAge int, secure bool) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}
