package middleware

import (
	"fmt"
	"net/http"
)

// cacheControlWriter sets Cache-Control just before the header is written,
// once the status is known.
type cacheControlWriter struct {
	*statusWriter
	value       string
	wroteHeader bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if code == http.StatusOK && w.Header().Get("Cache-Control") == "" {
			w.Header().Set("Cache-Control", w.value)
		}
	}
	w.statusWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.statusWriter.Write(b)
}

// CacheControl marks successful GET responses as publicly cacheable for
// maxAge seconds. Errors are never cached; maxAge <= 0 disables the header.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", maxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge <= 0 || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheControlWriter{statusWriter: newStatusWriter(w), value: value}, r)
		})
	}
}
