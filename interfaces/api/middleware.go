package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/narcache/infrastructure/logging"
)

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging assigns each request an id and logs method, path,
// status and duration once the handler returns.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)

		entry := logging.Info()
		if recorder.status >= http.StatusInternalServerError {
			entry = logging.Error()
		}
		entry.
			Add(logging.RequestID(requestID)).
			Add(logging.Method(r.Method)).
			Add(logging.Path(r.URL.Path)).
			Add(logging.Status(recorder.status)).
			Add(logging.Duration(duration)).
			Msg("request handled")
	})
}
