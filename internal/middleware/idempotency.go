package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxIdempotencyBody   = 1 << 20
	maxIdempotencyKeyLen = 255
)

// IdempotencyKV is the subset of jetstream.KeyValue the middleware needs.
type IdempotencyKV interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// idempotencyEntry is a stored response, or a claim while Pending.
type idempotencyEntry struct {
	Pending    bool                `json:"pending,omitempty"`
	StatusCode int                 `json:"status_code,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
	Body       []byte              `json:"body,omitempty"`
}

var pendingEntry = []byte(`{"pending":true}`)

// Idempotency returns middleware that replays the stored response of a
// mutating request carrying an Idempotency-Key already seen for the same
// method and path. A concurrent duplicate gets 409 while the first is in
// flight. Server errors are not stored so the client may retry.
func Idempotency(kv IdempotencyKV) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				writeJSONError(w, http.StatusBadRequest, "idempotency key too long")
				return
			}

			ctx := r.Context()
			kvKey := idempotencyKVKey(r.Method, r.URL.Path, key)

			if _, err := kv.Create(ctx, kvKey, pendingEntry); err != nil {
				if !errors.Is(err, jetstream.ErrKeyExists) {
					slog.Warn("idempotency: claim failed, processing without replay", "error", err)
					next.ServeHTTP(w, r)
					return
				}
				replay(ctx, w, kv, kvKey)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			// The client may have gone away; the outcome must still be recorded.
			store := context.WithoutCancel(ctx)
			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				if err := kv.Delete(store, kvKey); err != nil {
					slog.Warn("idempotency: release claim failed", "error", err)
				}
				return
			}
			data, err := json.Marshal(idempotencyEntry{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			})
			if err == nil {
				_, err = kv.Put(store, kvKey, data)
			}
			if err != nil {
				slog.Warn("idempotency: store response failed", "error", err)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, kv IdempotencyKV, kvKey string) {
	entry, err := kv.Get(ctx, kvKey)
	if err != nil {
		slog.Warn("idempotency: read stored response failed", "error", err)
		writeJSONError(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	}
	var cached idempotencyEntry
	if err := json.Unmarshal(entry.Value(), &cached); err != nil || cached.Pending {
		writeJSONError(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	}
	for k, vals := range cached.Headers {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

// idempotencyKVKey hashes the request identity into a valid KV key.
func idempotencyKVKey(method, path, key string) string {
	sum := sha256.Sum256([]byte(method + " " + path + " " + key))
	return "idem." + hex.EncodeToString(sum[:])
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// responseRecorder tees the response into a buffer.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
