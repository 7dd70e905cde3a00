package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"surveyentry/internal/app/apiresp"
)

type contextKey string

const (
	operatorContextKey contextKey = "auth_operator"
	operatorSlotKey    contextKey = "auth_operator_slot"
)

const sessionCookieName = "surveyentry_session"

type authService interface {
	Authenticate(ctx context.Context, username, password string) (*Operator, error)
	CreateSession(ctx context.Context, operatorID int64, ipAddress, userAgent string) (string, time.Time, error)
	GetSessionOperator(ctx context.Context, token string) (*Operator, error)
	RevokeSession(ctx context.Context, token string) error
}

type Handler struct {
	svc          authService
	secureCookie bool
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewHandler(svc authService, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	op, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrForbidden):
			apiresp.WriteError(w, r, http.StatusForbidden, "operator is not active")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	token, expiresAt, err := h.svc.CreateSession(r.Context(), op.ID, readIP(r), r.UserAgent())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "cannot create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{
		"operator":   op,
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeSession(r.Context(), readSessionToken(r)); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	op, ok := CurrentOperator(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, op)
}

func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, err := h.svc.GetSessionOperator(r.Context(), readSessionToken(r))
		if err != nil {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		if slot, ok := r.Context().Value(operatorSlotKey).(*operatorSlot); ok {
			slot.op, slot.set = *op, true
		}
		next.ServeHTTP(w, r.WithContext(ContextWithOperator(r.Context(), *op)))
	})
}

func CurrentOperator(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorContextKey).(Operator)
	return op, ok
}

// ContextWithOperator injects an authenticated operator into context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

type operatorSlot struct {
	op  Operator
	set bool
}

// WithOperatorSlot lets middleware running before RequireAuth learn which
// operator it authenticated; read it back with SlotOperator once the request is served.
func WithOperatorSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, operatorSlotKey, &operatorSlot{})
}

func SlotOperator(ctx context.Context) (Operator, bool) {
	slot, ok := ctx.Value(operatorSlotKey).(*operatorSlot)
	if !ok || !slot.set {
		return Operator{}, false
	}
	return slot.op, true
}

// readSessionToken prefers the cookie and falls back to a bearer token.
func readSessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func readIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return strings.TrimSpace(r.RemoteAddr)
}
