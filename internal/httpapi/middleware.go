package httpapi

import "net/http"

// headToGet folds HEAD into GET before routing, so every GET handler
// also answers HEAD without a separate registration. Ported from
// shield.HeadToGet.
func headToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the response headers safe to apply unconditionally,
// even to served archive HTML: no CSP or frame-ancestors restriction,
// since /w/* legitimately serves third-party HTML/scripts from inside
// ZIM archives and a strict policy there would break them. Narrowed
// from shield.SecurityHeaders' full header set to what applies to both
// the JSON API and raw archive content.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
