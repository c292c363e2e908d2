package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/signets/signets"
)

const maxRequestBody = 8 << 20

// newRouter mounts the HTTP API of svc.
func newRouter(svc *signets.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(apiHeaders)
	r.Use(maxBody(maxRequestBody))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/ingest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Roots []*signets.BookmarkNode `json:"roots"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, fmt.Errorf("invalid JSON: %w", err))
			return
		}
		report, err := svc.Ingest(r.Context(), req.Roots, nil)
		if err != nil {
			requestLog(r.Context()).Error("ingest failed", "error", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, report)
	})

	r.Route("/api/bookmarks", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var node signets.BookmarkNode
			if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
				writeError(w, 400, fmt.Errorf("invalid JSON: %w", err))
				return
			}
			rec, err := svc.AddBookmark(r.Context(), &node)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 201, rec)
		})

		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.ClearAll(r.Context()); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "cleared"})
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			rec, err := svc.Bookmark(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, rec)
		})

		r.Get("/{id}/fetches", func(w http.ResponseWriter, r *http.Request) {
			logs, err := svc.FetchHistory(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, logs)
		})
	})

	r.Get("/api/search", func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if limit := queryInt(r, "limit", 0); limit > 0 && len(results) > limit {
			results = results[:limit]
		}
		writeJSON(w, 200, results)
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, stats)
	})

	r.Get("/api/indexed", func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, 400, errors.New("url is required"))
			return
		}
		ok, err := svc.IsIndexed(r.Context(), url)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, map[string]any{"url": url, "id": signets.ID(url), "indexed": ok})
	})

	r.Post("/api/index/rebuild", func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.RebuildIndex(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, map[string]int{"docs": n})
	})

	return r
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, signets.ErrInvalidInput):
		return 400
	case errors.Is(err, signets.ErrNotFound):
		return 404
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
