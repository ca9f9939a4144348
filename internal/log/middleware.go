// SPDX-License-Identifier: MIT

package log

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Middleware logs one line per HTTP request and propagates a request id
// (taken from X-Request-ID or generated) through the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", rid)
			ctx := ContextWithRequestID(r.Context(), rid)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			logger := WithComponentFromContext(ctx, "api")
			evt := logger.Info()
			if status >= http.StatusInternalServerError {
				evt = logger.Error()
			} else if status >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str(FieldEvent, "request.handled").
				Str(FieldMethod, r.Method).
				Str(FieldPath, r.URL.Path).
				Int(FieldStatus, status).
				Int("bytes", rec.bytes).
				Int64(FieldDuration, time.Since(start).Milliseconds()).
				Msg("http request")
		})
	}
}
