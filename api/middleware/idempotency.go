package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claystudio/membership-backend/api/responses"
	"github.com/claystudio/membership-backend/api/validators"
	pkgerrors "github.com/claystudio/membership-backend/pkg/errors"
	"github.com/claystudio/membership-backend/pkg/logger"
)

const (
	// IntakeReplayTTL covers public intake and role grants.
	IntakeReplayTTL = 24 * time.Hour
	// DecisionReplayTTL keeps decision responses replayable for a week.
	DecisionReplayTTL = 7 * 24 * time.Hour

	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 128
)

// ReplayStore persists the first response seen for an idempotency key.
type ReplayStore interface {
	LoadReplay(ctx context.Context, key string) ([]byte, bool, error)
	SaveReplay(ctx context.Context, key string, payload []byte, ttl time.Duration) (bool, error)
}

type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"body_hash"`
}

// Idempotent requires an Idempotency-Key on the wrapped route and replays the
// stored response for a repeated key. Reusing a key with a different body is
// rejected. Server errors are not stored so the caller may retry. With a nil
// store the route runs unguarded.
func Idempotent(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKey {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"max_length": maxIdempotencyKey}))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large").
						WithDetails(map[string]any{"max_bytes": validators.MaxBodyBytes}))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			bodyHash := digest(body)
			key := replayKey(r, clientKey)

			stored, found, err := store.LoadReplay(ctx, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if found {
				var prev replay
				if err := json.Unmarshal(stored, &prev); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if prev.BodyHash != bodyHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				if prev.ContentType != "" {
					w.Header().Set("Content-Type", prev.ContentType)
				}
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(prev.Status)
				_, _ = w.Write(prev.Body)
				return
			}

			rec := newStatusRecorder(w, true)
			next.ServeHTTP(rec, r)

			if rec.Status() >= http.StatusInternalServerError {
				return
			}
			payload, err := json.Marshal(replay{
				Status:      rec.Status(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				BodyHash:    bodyHash,
			})
			if err != nil {
				logg.Error(ctx, "idempotency.encode_failed", err)
				return
			}
			if _, err := store.SaveReplay(ctx, key, payload, ttl); err != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

// replayKey scopes a client key to the caller and the request target.
// Anonymous callers are scoped by IP.
func replayKey(r *http.Request, clientKey string) string {
	caller := MemberIDFromContext(r.Context())
	if caller == "" {
		caller = "anon-" + clientIP(r)
	}
	return caller + ":" + digest([]byte(r.Method+" "+r.URL.Path))[:16] + ":" + clientKey
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
