package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/hospital-auth/pkg/logger"
)

const (
	redacted        = "[FILTERED]"
	maxLoggedBody   = 4 << 10
	maxPeekedBody   = 1 << 20
	truncatedSuffix = "...[TRUNCATED]"
	oversizedBody   = "[BODY TOO LARGE]"
)

// sensitiveFields are matched as substrings of lower-cased header names, JSON keys and form keys.
var sensitiveFields = []string{
	"password",
	"credential",
	"token",
	"csrf",
	"session",
	"cookie",
	"authorization",
	"secret",
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// LoggingMiddleware logs each request and response with credentials, anti-forgery
// tokens and session cookies masked. Request fields attached to the context
// (trace id, client ip) are added to both lines.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := logger.From(r.Context(), base)

			body, oversized := peekBody(r)
			loggedBody := redactBody(r.Header.Get("Content-Type"), body)
			if oversized {
				loggedBody = oversizedBody
			}

			lg.InfoContext(r.Context(), "incoming request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", redactQuery(r.URL.Query()),
				"user_agent", r.UserAgent(),
				"headers", redactHeaders(r.Header),
				"body", loggedBody,
			)

			rw := &capturingWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			lg.Log(r.Context(), level, "response",
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", rw.size,
				"location", rw.Header().Get("Location"),
				"body", redactBody(rw.Header().Get("Content-Type"), rw.body.Bytes()),
			)
		})
	}
}

type replayBody struct {
	io.Reader
	io.Closer
}

// peekBody buffers at most maxPeekedBody+1 bytes of the request body and puts them
// back in front of the unread remainder, so handlers still see the whole body.
func peekBody(r *http.Request) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false
	}
	buf, _ := io.ReadAll(io.LimitReader(r.Body, maxPeekedBody+1))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	return buf, len(buf) > maxPeekedBody
}

// capturingWriter keeps the status and the first maxLoggedBody bytes of the response.
type capturingWriter struct {
	http.ResponseWriter
	status int
	size   int
	body   bytes.Buffer
}

func (cw *capturingWriter) WriteHeader(code int) {
	if cw.status == 0 {
		cw.status = code
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *capturingWriter) Write(b []byte) (int, error) {
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	if room := maxLoggedBody - cw.body.Len(); room > 0 {
		cw.body.Write(b[:min(room, len(b))])
	}
	n, err := cw.ResponseWriter.Write(b)
	cw.size += n
	return n, err
}

func (cw *capturingWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func redactQuery(q url.Values) string {
	for key := range q {
		if isSensitive(key) {
			q[key] = []string{redacted}
		}
	}
	return q.Encode()
}

// redactBody masks sensitive keys in JSON and url-encoded form bodies. Any other
// body is logged only by size.
func redactBody(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return "[UNPARSEABLE FORM]"
		}
		return redactQuery(form)

	case "", "application/json":
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			if mediaType == "" {
				return "[OPAQUE BODY]"
			}
			return "[UNPARSEABLE JSON]"
		}
		out, err := json.Marshal(redactJSON(data))
		if err != nil {
			return "[UNPARSEABLE JSON]"
		}
		if len(out) > maxLoggedBody {
			return string(out[:maxLoggedBody]) + truncatedSuffix
		}
		return string(out)

	default:
		return "[" + mediaType + " BODY]"
	}
}

func redactJSON(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = redacted
				continue
			}
			out[key] = redactJSON(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactJSON(item)
		}
		return out
	default:
		return v
	}
}
