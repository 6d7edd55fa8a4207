package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// RecoveryMiddleware turns handler panics into 500 responses.
type RecoveryMiddleware struct {
	logger zerolog.Logger
}

func NewRecoveryMiddleware(logger zerolog.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

// Handler recovers panics raised by next. http.ErrAbortHandler is re-raised
// so net/http can drop the connection. A response already started is left
// as is.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			m.logger.Error().
				Str("request_id", RequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("Panic recovered")

			if !rec.wroteHeader {
				http.Error(rec, "internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(rec, r)
	})
}
