package admin

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"blobgw/internal/reqlog"
)

// statusRecorder remembers the status code a handler answered with.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// status is the code sent to the client; a handler that wrote nothing
// answered 200.
func (w *statusRecorder) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

func outcomeOf(code int) reqlog.Outcome {
	switch {
	case code >= http.StatusInternalServerError:
		return reqlog.Failed
	case code >= http.StatusBadRequest:
		return reqlog.CallerFault
	default:
		return reqlog.Succeeded
	}
}

// LogRequest logs each admin request with the same fields as gRPC calls.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(rec, r)

		code := rec.status()
		entry := reqlog.Entry{
			Transport: "http",
			IP:        r.RemoteAddr,
			Method:    r.Method + " " + r.URL.Path,
			Duration:  time.Since(start),
			Code:      strconv.Itoa(code),
			Outcome:   outcomeOf(code),
		}
		if entry.Outcome != reqlog.Succeeded {
			entry.Reason = http.StatusText(code)
		}
		entry.Log(r.Context())
	})
}

// Recoverer answers 500 for a panicking handler. http.ErrAbortHandler is
// re-raised so the server aborts the response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			slog.Error("Internal error in admin handler", "path", r.URL.Path, "error", fmt.Sprint(rvr))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
