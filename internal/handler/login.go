package handler

import (
	"net/http"

	"qrrelay/internal/config"
	"qrrelay/internal/logger"
	"qrrelay/internal/middleware"
)

// LoginHandler handles POST /auth/login by validating password and issuing an auth cookie.
func LoginHandler(config *config.Config, auth *middleware.Auth, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		password := r.FormValue("password")
		if !config.CheckPassword(password) {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "Invalid password")
			return
		}

		value, expires := auth.Issue()
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.CookieName,
			Value:    value,
			Path:     "/",
			Expires:  expires,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LogoutHandler revokes the authentication cookie.
func LogoutHandler(auth *middleware.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(middleware.CookieName); err == nil {
			auth.Revoke(cookie.Value)
		}

		http.SetCookie(w, &http.Cookie{
			Name:   middleware.CookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1, // usunięcie cookie
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
