package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"harvest-deck/internal/usecase"
)

// statusEngine is the slice of the engine the status server reads.
type statusEngine interface {
	State(ctx context.Context) (usecase.LoopState, error)
	Buttons(ctx context.Context) ([]usecase.ButtonStatus, error)
	RefreshSoon(ctx context.Context) error
}

// HTTPServer returns a configured http.Server exposing the engine status.
// Call ListenAndServe on the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(a.log, newStatusRouter(a.engine)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.log.Info("status server configured", slog.String("addr", addr))
	return srv
}

func newStatusRouter(eng statusEngine) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state, err := eng.State(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "loop": state.String()})
	}).Methods("GET")

	r.HandleFunc("/buttons", func(w http.ResponseWriter, r *http.Request) {
		buttons, err := eng.Buttons(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, buttons)
	}).Methods("GET")

	r.HandleFunc("/buttons/{button}", func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["button"]
		buttons, err := eng.Buttons(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
			return
		}
		for _, b := range buttons {
			if b.Button == id {
				writeJSON(w, http.StatusOK, b)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "error": "unknown button"})
	}).Methods("GET")

	r.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.RefreshSoon(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
	}).Methods("POST")

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}
