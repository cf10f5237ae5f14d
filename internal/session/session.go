package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/hospital-auth/internal"
)

const (
	DefaultCookieName        = "HMS_SESSION"
	DefaultInactivityTimeout = 1800 * time.Second
	DefaultAbsoluteLifetime  = 28800 * time.Second

	tokenBytes = 32

	keyReturnTo = "redirect_after_login"
	keyFlash    = "flash"
)

type State int

const (
	Anonymous State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "anonymous"
	}
}

type Config struct {
	CookieName        string
	CookieSecure      bool
	InactivityTimeout time.Duration
	AbsoluteLifetime  time.Duration
}

func ConfigFrom(cfg internal.SessionConfig) Config {
	return Config{
		CookieName:        cfg.CookieName,
		CookieSecure:      cfg.CookieSecure,
		InactivityTimeout: cfg.InactivityTimeout,
		AbsoluteLifetime:  cfg.AbsoluteLifetime,
	}
}

type Option func(*Manager)

// WithClock replaces time.Now, mostly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns the session store and hands out one Handle per request.
type Manager struct {
	cfg   Config
	store Store
	now   func() time.Time
}

func NewManager(cfg Config, store Store, opts ...Option) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.AbsoluteLifetime <= 0 {
		cfg.AbsoluteLifetime = DefaultAbsoluteLifetime
	}
	m := &Manager{cfg: cfg, store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Config() Config {
	return m.cfg
}

// Load binds the session named by the request cookie, if any, to w.
// An unknown or missing cookie yields an anonymous handle.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *Handle {
	h := &Handle{m: m, w: w}
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return h
	}
	if rec, ok := m.store.Get(c.Value); ok {
		h.rec = rec
	}
	return h
}

// Middleware loads the session for every request and stores the handle in the context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := m.Load(w, r)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), h)))
	})
}

func (m *Manager) expired(a *authState, now time.Time) bool {
	if a == nil {
		return false
	}
	return now.Sub(a.LastActivity) > m.cfg.InactivityTimeout || now.Sub(a.CreatedAt) > m.cfg.AbsoluteLifetime
}

// PurgeExpired drops expired authenticated sessions and anonymous ones left idle past the inactivity timeout.
func (m *Manager) PurgeExpired() int {
	now := m.now()
	return m.store.DeleteIf(func(rec *Record) bool {
		if rec.Auth != nil {
			return m.expired(rec.Auth, now)
		}
		return now.Sub(rec.UpdatedAt) > m.cfg.InactivityTimeout
	})
}

// RunSweeper calls PurgeExpired every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgeExpired(); n > 0 {
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}

func (m *Manager) Count() int {
	return m.store.Len()
}

// Handle is one request's view of its session. It is not safe for concurrent use.
type Handle struct {
	m   *Manager
	w   http.ResponseWriter
	rec *Record
}

func (h *Handle) ID() string {
	if h.rec == nil {
		return ""
	}
	return h.rec.ID
}

func (h *Handle) State() State {
	if h.rec == nil || h.rec.Auth == nil {
		return Anonymous
	}
	if h.IsExpired() {
		return Expired
	}
	return Authenticated
}

// Create starts an authenticated session under a fresh identifier. Any prior
// identifier is discarded; values such as the return-to target carry over.
func (h *Handle) Create(p Principal) error {
	id, err := randomToken()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}
	csrf, err := randomToken()
	if err != nil {
		return fmt.Errorf("generate csrf token: %w", err)
	}

	now := h.m.now()
	rec := &Record{ID: id, UpdatedAt: now}
	if h.rec != nil {
		rec.Values = h.rec.clone().Values
		h.m.store.Delete(h.rec.ID)
	}
	p.Roles = append([]string(nil), p.Roles...)
	rec.Auth = &authState{
		Principal:    p,
		CSRFToken:    csrf,
		CreatedAt:    now,
		LastActivity: now,
	}

	h.rec = rec
	h.m.store.Save(rec)
	h.setCookie(id)
	return nil
}

// Touch records activity. Callers check IsExpired first. When the session was
// destroyed by another request in the meantime the handle becomes anonymous.
func (h *Handle) Touch() {
	if h.rec == nil || h.rec.Auth == nil {
		return
	}
	now := h.m.now()
	h.rec.Auth.LastActivity = now
	h.rec.UpdatedAt = now
	h.update()
}

// update writes the handle's record back without resurrecting a deleted id.
func (h *Handle) update() bool {
	if h.m.store.Update(h.rec) {
		return true
	}
	h.rec = nil
	return false
}

// IsExpired is false for anonymous sessions. A gap equal to a timeout is still valid.
func (h *Handle) IsExpired() bool {
	if h.rec == nil {
		return false
	}
	return h.m.expired(h.rec.Auth, h.m.now())
}

// Destroy removes the session and tells the browser to drop the cookie.
func (h *Handle) Destroy() {
	if h.rec != nil {
		h.m.store.Delete(h.rec.ID)
		h.rec = nil
	}
	if h.w != nil {
		http.SetCookie(h.w, &http.Cookie{
			Name:     h.m.cfg.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   h.m.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *Handle) principal() *authState {
	if h.rec == nil {
		return nil
	}
	return h.rec.Auth
}

func (h *Handle) CurrentUserID() (int64, bool) {
	a := h.principal()
	if a == nil {
		return 0, false
	}
	return a.UserID, true
}

func (h *Handle) CurrentRoles() []string {
	a := h.principal()
	if a == nil {
		return nil
	}
	return append([]string(nil), a.Roles...)
}

func (h *Handle) CurrentEmail() string {
	if a := h.principal(); a != nil {
		return a.Email
	}
	return ""
}

func (h *Handle) CurrentFullName() string {
	if a := h.principal(); a != nil {
		return a.FullName
	}
	return ""
}

func (h *Handle) CSRFToken() string {
	if a := h.principal(); a != nil {
		return a.CSRFToken
	}
	return ""
}

func (h *Handle) VerifyCSRFToken(candidate string) bool {
	token := h.CSRFToken()
	if token == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1
}

func (h *Handle) SetReturnTo(uri string) error {
	return h.setValue(keyReturnTo, uri)
}

func (h *Handle) PopReturnTo() string {
	return h.popValue(keyReturnTo)
}

func (h *Handle) SetFlash(message string) error {
	return h.setValue(keyFlash, message)
}

func (h *Handle) PopFlash() string {
	return h.popValue(keyFlash)
}

// setValue starts an anonymous session when none exists yet, or when the
// current one was destroyed after this handle loaded it.
func (h *Handle) setValue(key, value string) error {
	if h.rec != nil {
		if h.rec.Values == nil {
			h.rec.Values = make(map[string]string)
		}
		h.rec.Values[key] = value
		h.rec.UpdatedAt = h.m.now()
		if h.update() {
			return nil
		}
	}

	id, err := randomToken()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}
	h.rec = &Record{ID: id, Values: map[string]string{key: value}, UpdatedAt: h.m.now()}
	h.m.store.Save(h.rec)
	h.setCookie(id)
	return nil
}

func (h *Handle) popValue(key string) string {
	if h.rec == nil {
		return ""
	}
	v, ok := h.rec.Values[key]
	if !ok {
		return ""
	}
	delete(h.rec.Values, key)
	if !h.update() {
		return ""
	}
	return v
}

func (h *Handle) setCookie(id string) {
	if h.w == nil {
		return
	}
	http.SetCookie(h.w, &http.Cookie{
		Name:     h.m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// randomToken returns 256 bits from crypto/rand, hex encoded.
func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
