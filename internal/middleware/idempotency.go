package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cassiomorais/storepay/internal/repository/postgres"
	"github.com/rs/zerolog"
)

const (
	IdempotencyHeader      = "Idempotency-Key"
	maxIdempotencyBodySize = 1 << 20
	maxIdempotencyKeyLen   = 200
)

// IdempotencyStore persists responses per idempotency key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	Save(ctx context.Context, e *postgres.IdempotencyEntry) error
}

// Idempotency replays the stored response when a request repeats its
// Idempotency-Key. Keys are scoped to the caller and the route, and a key
// reused with a different body is refused with 422. Server errors are not
// stored, so the client may retry them.
func Idempotency(store IdempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				writeIdempotencyError(w, http.StatusBadRequest, "idempotency key too long", "idempotency_key_invalid")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodySize+1))
			if err != nil {
				writeIdempotencyError(w, http.StatusBadRequest, "could not read request body", "invalid_request")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := scopedKey(r, key)
			requestHash := fingerprint(body)
			logger := zerolog.Ctx(r.Context())

			entry, err := store.Get(r.Context(), scoped)
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency lookup failed, processing request")
			}
			if entry != nil {
				if entry.RequestHash != "" && entry.RequestHash != requestHash {
					writeIdempotencyError(w, http.StatusUnprocessableEntity,
						"idempotency key was used with a different request", "idempotency_key_reused")
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.ResponseStatus)
				w.Write([]byte(entry.ResponseBody))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			now := time.Now().UTC()
			err = store.Save(context.WithoutCancel(r.Context()), &postgres.IdempotencyEntry{
				Key:            scoped,
				RequestHash:    requestHash,
				ResponseBody:   rec.body.String(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(ttl),
			})
			if err != nil {
				logger.Warn().Err(err).Msg("failed to store idempotent response")
			}
		})
	}
}

// scopedKey binds a client key to the authenticated user and the route so
// two callers can never collide.
func scopedKey(r *http.Request, key string) string {
	user, _ := GetUserID(r.Context())
	return fingerprint([]byte(user + "\x00" + r.Method + "\x00" + r.URL.Path + "\x00" + key))
}

func fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeIdempotencyError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
