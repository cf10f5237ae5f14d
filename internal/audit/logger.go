package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultWriteTimeout = 2 * time.Second

type Option func(*recordOptions)

type recordOptions struct {
	userID    *int64
	anonymous bool
	client    *internal.ClientInfo
}

// WithUserID attributes the entry to id instead of the session user.
func WithUserID(id int64) Option {
	return func(o *recordOptions) {
		o.userID = &id
	}
}

// WithAnonymous records the entry without a user even when a session user exists.
func WithAnonymous() Option {
	return func(o *recordOptions) {
		o.anonymous = true
	}
}

func WithClient(ip, userAgent string) Option {
	return func(o *recordOptions) {
		o.client = &internal.ClientInfo{IP: ip, UserAgent: userAgent}
	}
}

// Logger records security events. Recording never fails the caller: when the
// writer errors the entry goes to the process log instead and may be lost.
type Logger struct {
	writer       Writer
	log          *slog.Logger
	now          func() time.Time
	writeTimeout time.Duration
	fallbacks    prometheus.Counter
}

func NewLogger(writer Writer, log *slog.Logger) *Logger {
	return &Logger{
		writer:       writer,
		log:          log,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
}

// RegisterMetrics counts entries diverted to the fallback sink.
func (l *Logger) RegisterMetrics(reg prometheus.Registerer) error {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_fallbacks_total",
		Help: "Audit entries written to the process log because persistence failed.",
	})
	if err := reg.Register(c); err != nil {
		return err
	}
	l.fallbacks = c
	return nil
}

func (l *Logger) Record(ctx context.Context, action Action, metadata Metadata, opts ...Option) {
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}

	entry := Entry{
		Action:    action,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}

	switch {
	case o.userID != nil:
		entry.UserID = o.userID
	case o.anonymous:
	default:
		if h := session.FromContext(ctx); h != nil {
			if id, ok := h.CurrentUserID(); ok {
				entry.UserID = &id
			}
		}
	}

	client := internal.ClientInfoFromContext(ctx)
	if o.client != nil {
		client = *o.client
	}
	entry.IPAddress = client.IP
	entry.UserAgent = client.UserAgent

	if l.writer == nil {
		l.fallback(ctx, entry, nil)
		return
	}

	writeCtx, cancel := internal.WithTimeout(ctx, l.writeTimeout)
	defer cancel()
	if err := l.writer.Write(writeCtx, entry); err != nil {
		l.fallback(ctx, entry, err)
	}
}

func (l *Logger) fallback(ctx context.Context, entry Entry, cause error) {
	if l.fallbacks != nil {
		l.fallbacks.Inc()
	}
	if l.log == nil {
		return
	}
	meta, _ := EncodeMetadata(entry.Metadata)
	var userID any
	if entry.UserID != nil {
		userID = *entry.UserID
	}
	logger.From(ctx, l.log).WarnContext(ctx, "[AUDIT] "+string(entry.Action),
		"user_id", userID,
		"ip", entry.IPAddress,
		"metadata", meta,
		"error", cause,
	)
}
