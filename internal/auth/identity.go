// internal/auth/identity.go
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CookieName carries the identity token between requests.
const CookieName = "auth_token"

// ExtractCookieToken pulls the named cookie value out of a raw Cookie
// header, or returns empty if not found.
func ExtractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// UserFromRequest returns the authenticated user id from the request's
// auth_token cookie, or an error when the token is missing or invalid.
func UserFromRequest(r *http.Request) (uuid.UUID, error) {
	token := ExtractCookieToken(r.Header.Get("Cookie"), CookieName)
	if token == "" {
		return uuid.Nil, fmt.Errorf("missing %s cookie", CookieName)
	}
	sub, err := AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id in token: %w", err)
	}
	return userID, nil
}

// EnsureIdentity returns the caller's user id, minting an ephemeral
// identity (fresh uuid + signed cookie) when the request carries no valid
// token. Account management itself lives outside this service.
func EnsureIdentity(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if userID, err := UserFromRequest(r); err == nil {
		return userID, nil
	}

	userID := uuid.New()
	token, err := CreateJWT(userID.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to mint ephemeral identity: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return userID, nil
}
