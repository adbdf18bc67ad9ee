/**
 * @description
 * This file contains custom middleware for the HTTP router: bearer token
 * authentication and the role guard. Roles are issued by the identity service;
 * the ledger only reads them from the token.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token parsing and HS256 verification.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a member's privilege level.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

var roleRank = map[Role]int{
	RoleRegular:   1,
	RoleCashier:   2,
	RoleManager:   3,
	RoleSuperuser: 4,
}

// AtLeast reports whether r is min or above. Unknown roles rank below everything.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] > 0 && roleRank[r] >= roleRank[min]
}

// Claims are the token claims the ledger understands.
type Claims struct {
	Role       Role `json:"role"`
	Suspicious bool `json:"suspicious"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	AccountID  string
	Role       Role
	Suspicious bool
}

// PrincipalContextKey is a custom type for the context key to avoid collisions.
type PrincipalContextKey string

const principalKey PrincipalContextKey = "principal"

// BearerAuthMiddleware validates HS256 tokens signed with signingKey and stores the
// caller's Principal in the request context.
func BearerAuthMiddleware(signingKey []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if len(signingKey) == 0 {
					return nil, fmt.Errorf("token signing key is not configured")
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			subject, _ := claims.GetSubject()
			if strings.TrimSpace(subject) == "" {
				writeError(w, http.StatusUnauthorized, "Account ID not found in token")
				return
			}
			if _, ok := roleRank[claims.Role]; !ok {
				writeError(w, http.StatusUnauthorized, "Unknown role in token")
				return
			}

			principal := Principal{AccountID: subject, Role: claims.Role, Suspicious: claims.Suspicious}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers below min with 403.
func RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.Role.AtLeast(min) {
				writeError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal retrieves the authenticated caller from the request context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}
