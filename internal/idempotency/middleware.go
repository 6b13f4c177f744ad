package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// HeaderKey is the request header carrying the client's idempotency key.
const HeaderKey = "Idempotency-Key"

const maxBodyBytes = 1_048_576

// ErrKeyReused is reported when a key is replayed with a different request.
var ErrKeyReused = errors.New("idempotency key was already used for a different request")

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays stored responses for requests that repeat an
// Idempotency-Key within scope. Requests without the header, or a nil store,
// pass straight through. Only successful responses are kept; rejections
// release the key because a retry may succeed once state changes. A key
// reused with a different method, path or body is refused with 422.
func Middleware(store *Store, scope func(*http.Request) string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if store == nil || key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				http.Error(w, "could not read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := Fingerprint(r.Method, r.URL.Path, body)

			ctx := r.Context()
			s := scope(r)
			rec, err := store.Begin(ctx, s, key)
			switch {
			case errors.Is(err, ErrInFlight):
				http.Error(w, err.Error(), http.StatusConflict)
				return
			case err != nil:
				logger.Warn("idempotency store unavailable", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			case rec != nil && rec.Fingerprint != fingerprint:
				logger.Warn("idempotency key reused", zap.String("key", key), zap.String("path", r.URL.Path))
				http.Error(w, ErrKeyReused.Error(), http.StatusUnprocessableEntity)
				return
			case rec != nil:
				if rec.ContentType != "" {
					w.Header().Set("Content-Type", rec.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(rec.Status)
				w.Write(rec.Body)
				return
			}

			rw := &recorder{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			if rw.status >= 200 && rw.status < 300 {
				err = store.Complete(ctx, s, key, Record{
					Fingerprint: fingerprint,
					Status:      rw.status,
					ContentType: rw.Header().Get("Content-Type"),
					Body:        rw.body.Bytes(),
				})
			} else {
				err = store.Release(ctx, s, key)
			}
			if err != nil {
				logger.Warn("idempotency record not saved", zap.String("key", key), zap.Error(err))
			}
		})
	}
}
