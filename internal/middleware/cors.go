package middleware

import (
	"net/http"
	"strings"
)

// corsPolicy はCORS_ALLOWED_ORIGINをカンマ区切りで解釈した許可リスト。
type corsPolicy struct {
	wildcard bool
	origins  map[string]bool
	single   string
}

func parseCORSOrigins(raw string) corsPolicy {
	p := corsPolicy{origins: map[string]bool{}}
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.origins[o] = true
			p.single = o
		}
	}
	if len(p.origins) == 0 {
		p.wildcard = true
	}
	if len(p.origins) != 1 {
		p.single = ""
	}
	return p
}

// allowOrigin はAccess-Control-Allow-Originに返す値を決める。空なら付与しない。
// 1件だけ設定されている場合はOriginヘッダーの有無によらずその値を返す。
func (p corsPolicy) allowOrigin(requestOrigin string) string {
	switch {
	case p.wildcard:
		return "*"
	case p.single != "":
		return p.single
	case p.origins[requestOrigin]:
		return requestOrigin
	default:
		return ""
	}
}

// NewCORSMiddleware は読み取り専用APIのCORSミドルウェアを返す。
// 認証情報を扱わないためAllow-Credentialsは付けない。
// クライアントが429の待ち時間を読めるようRetry-Afterを公開する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	policy := parseCORSOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !policy.wildcard {
				h.Add("Vary", "Origin")
			}
			if origin := policy.allowOrigin(r.Header.Get("Origin")); origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Expose-Headers", "Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
