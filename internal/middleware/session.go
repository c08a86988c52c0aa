// Package middleware содержит HTTP middleware кассового сервиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/kassa-system/internal/model"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	sessionCookieName = "kassa_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// SessionMiddleware проверяет подписанный cookie сеанса сотрудника.
// Вход в систему — это выбор сотрудника, поэтому cookie несёт снимок
// его личности, а не только идентификатор.
type SessionMiddleware struct {
	secretKey []byte
}

// NewSessionMiddleware создаёт новый экземпляр SessionMiddleware с указанным секретным ключом.
func NewSessionMiddleware(secret string) *SessionMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &SessionMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie сеанса и добавляет данные сотрудника в контекст запроса.
func (m *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		session, ok := m.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает cookie сеанса для выбранного сотрудника.
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, session model.Session) error {
	value, err := m.signSession(session)
	if err != nil {
		return err
	}

	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}

	http.SetCookie(w, cookie)
	return nil
}

// ClearSessionCookie удаляет cookie сеанса.
func (m *SessionMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *SessionMiddleware) signSession(session model.Session) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(encoded))
	signature := mac.Sum(nil)

	return encoded + "." + hex.EncodeToString(signature), nil
}

func (m *SessionMiddleware) parseCookie(cookieValue string) (model.Session, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return model.Session{}, false
	}

	encoded := parts[0]
	signature := parts[1]

	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(encoded))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return model.Session{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return model.Session{}, false
	}

	var session model.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return model.Session{}, false
	}
	if session.EmployeeID == "" {
		return model.Session{}, false
	}

	return session, true
}

// GetSessionFromContext извлекает данные сеанса из контекста запроса.
func GetSessionFromContext(ctx context.Context) (model.Session, bool) {
	session, ok := ctx.Value(sessionKey).(model.Session)
	return session, ok
}
