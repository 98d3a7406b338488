package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/claystudio/membership-backend/api/responses"
	"github.com/claystudio/membership-backend/api/validators"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
)

// RateLimitStore counts hits in fixed windows.
type RateLimitStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Throttle caps requests per client address and per submitted email within
// one fixed window. A zero limit turns that dimension off.
type Throttle struct {
	Name     string
	Window   time.Duration
	PerIP    int64
	PerEmail int64
}

func (t Throttle) active() bool {
	return t.Window > 0 && (t.PerIP > 0 || t.PerEmail > 0)
}

// RateLimit applies t using store. With no store, or an inactive throttle,
// requests pass straight through. The client address is RemoteAddr, so
// proxies must be resolved upstream (chi's RealIP).
func RateLimit(t Throttle, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || !t.active() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			type bucket struct {
				kind, value string
				limit       int64
			}
			var buckets []bucket
			if ip := clientIP(r); t.PerIP > 0 && ip != "" {
				buckets = append(buckets, bucket{"ip", ip, t.PerIP})
			}
			if t.PerEmail > 0 {
				email, err := peekEmail(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if email != "" {
					buckets = append(buckets, bucket{"email", fingerprint(email), t.PerEmail})
				}
			}

			for _, b := range buckets {
				allowed, hits, err := store.FixedWindowAllow(ctx, t.Name+":"+b.kind+":"+b.value, b.limit, t.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit store"))
					return
				}
				if !allowed {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"throttle": t.Name,
						"bucket":   b.kind,
						"hits":     hits,
						"limit":    b.limit,
					}), "rate_limit.blocked")
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekEmail reads the JSON "email" field and puts the bytes back in front of
// the body so the handler sees it unchanged.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes+1))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body")
	}
	if int64(len(head)) > validators.MaxBodyBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
			WithDetails(map[string]any{"max_bytes": validators.MaxBodyBytes})
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	var peeked struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(head, &peeked) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(peeked.Email)), nil
}

func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:12])
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
