package shield

import "net/http"

// HeaderConfig lists the security headers set on every response. Empty
// fields are not sent.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders suits JSON API responses: nothing may be loaded or framed.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

// PreviewHeaders suits generated site previews. The document runs in a
// sandbox without same-origin access, so its inline scripts cannot read the
// session cookie, and it may be framed by the dashboard only.
func PreviewHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "sandbox allow-scripts allow-forms; default-src 'self' https: data: 'unsafe-inline'; frame-ancestors 'self'",
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

// SecurityHeaders sets cfg's headers before calling next. Handlers may
// overwrite them, which the preview endpoint does.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ApplyHeaders(w.Header(), cfg)
			next.ServeHTTP(w, r)
		})
	}
}

// ApplyHeaders writes cfg into h.
func ApplyHeaders(h http.Header, cfg HeaderConfig) {
	set := func(k, v string) {
		if v != "" {
			h.Set(k, v)
		} else {
			h.Del(k)
		}
	}
	set("Content-Security-Policy", cfg.CSP)
	set("X-Frame-Options", cfg.XFrameOptions)
	set("X-Content-Type-Options", cfg.XContentTypeOptions)
	set("Referrer-Policy", cfg.ReferrerPolicy)
	set("Permissions-Policy", cfg.PermissionsPolicy)
}

// HeadToGet lets GET routes answer HEAD requests; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
