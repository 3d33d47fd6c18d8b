package httpapi

import (
	"net/http"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/subjects/", func(w http.ResponseWriter, r *http.Request) {
		if hasSuffix(r.URL.Path, "/propose") {
			h.Propose(w, r)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /v1/subjects/", h.GetBySubject)

	mux.HandleFunc("POST /v1/negotiations/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case hasSuffix(r.URL.Path, "/counter"):
			h.Counter(w, r)
		case hasSuffix(r.URL.Path, "/accept"):
			h.Accept(w, r)
		case hasSuffix(r.URL.Path, "/reject"):
			h.Reject(w, r)
		case hasSuffix(r.URL.Path, "/withdraw"):
			h.Withdraw(w, r)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /v1/negotiations/{$}", h.ListNegotiations)
	mux.HandleFunc("GET /v1/negotiations", h.ListNegotiations)
	mux.HandleFunc("GET /v1/negotiations/", h.GetNegotiation)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

func hasSuffix(s, suf string) bool {
	if len(suf) > len(s) {
		return false
	}
	return s[len(s)-len(suf):] == suf
}
