package api

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"canforge/config"
	"canforge/logging"
)

// requireAdmin guards mutation routes with HTTP basic auth against the
// project's web users. With no users configured the routes are open.
func (h *handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := h.engine.GetConfig()
		cfg.Lock()
		open := len(cfg.Web.Users) == 0
		var user config.WebUser
		username, password, ok := r.BasicAuth()
		if u := cfg.FindWebUser(username); ok && u != nil {
			user = *u
		}
		cfg.Unlock()

		if open {
			next.ServeHTTP(w, r)
			return
		}
		if !ok || user.Username == "" || !checkPassword(password, user.PasswordHash) {
			logging.DebugLog(logging.CatAPI, "rejected credentials for '%s' from %s", username, r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="canforge"`)
			h.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !isAdmin(user.Role) {
			h.writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkPassword verifies a password against a bcrypt hash.
func checkPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashPassword generates a bcrypt hash of the password for a web user entry.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// isAdmin returns true if the role is admin.
func isAdmin(role string) bool {
	return role == config.RoleAdmin
}
