package middleware

import "net/http"

// MaxBodySize caps request bodies at n bytes. Reading past the cap fails
// with *http.MaxBytesError, which handlers report in their own dialect.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
