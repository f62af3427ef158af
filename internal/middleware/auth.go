// Package middleware содержит HTTP middleware кассового сервиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const cashierIDKey contextKey = "cashierID"

const (
	authCookieName = "pos_session"
	// Сессия кассира рассчитана на одну смену.
	authSessionTTL = 12 * time.Hour
)

// AuthMiddleware проверяет сессию кассира по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным,
// тогда сессии не переживают перезапуск сервиса.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("middleware: read random auth key: " + err.Error())
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		ttl:       authSessionTTL,
		now:       time.Now,
	}
}

// Middleware проверяет cookie сессии и добавляет идентификатор кассира в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		cashierID, ok := a.parseSession(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := WithCashierID(r.Context(), cashierID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie открывает сессию кассира.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, cashierID int64) {
	expires := a.now().Add(a.ttl)

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(cashierID, expires),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sign возвращает значение cookie вида "<id>.<unix expiry>.<hmac>".
func (a *AuthMiddleware) sign(cashierID int64, expires time.Time) string {
	payload := strconv.FormatInt(cashierID, 10) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.mac(payload)
}

func (a *AuthMiddleware) mac(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseSession(value string) (int64, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return 0, false
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.mac(payload))) {
		return 0, false
	}

	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || a.now().Unix() >= expires {
		return 0, false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// WithCashierID добавляет идентификатор кассира в контекст.
func WithCashierID(ctx context.Context, cashierID int64) context.Context {
	return context.WithValue(ctx, cashierIDKey, cashierID)
}

// GetCashierIDFromContext извлекает идентификатор кассира из контекста запроса.
func GetCashierIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(cashierIDKey).(int64)
	return id, ok
}
