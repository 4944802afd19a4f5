// Package api serves the task store and the execution pump over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
)

// maxBody caps request bodies, import documents included.
const maxBody = 10 << 20

// Server exposes the store and pump as a JSON API.
type Server struct {
	store *store.Store
	pump  *pump.Pump
	log   io.Writer

	// ctx bounds background batches started over HTTP.
	ctx context.Context
	wg  sync.WaitGroup
}

// New creates a Server. Batches started through POST /runs stop between
// tasks once ctx is done.
func New(ctx context.Context, st *store.Store, p *pump.Pump, log io.Writer) *Server {
	if log == nil {
		log = os.Stderr
	}
	return &Server{store: st, pump: p, log: log, ctx: ctx}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/tasks", s.listTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.createTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskID}", s.getTask).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{taskID}", s.updateTask).Methods(http.MethodPatch)
	r.HandleFunc("/tasks/{taskID}", s.deleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/tasks/{taskID}/archive", s.archiveTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskID}/unarchive", s.unarchiveTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskID}/events/{event}", s.applyEvent).Methods(http.MethodPost)
	r.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/export", s.export).Methods(http.MethodGet)
	r.HandleFunc("/import", s.importTasks).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.startRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/current", s.currentRun).Methods(http.MethodGet)
	r.Use(s.logRequests)
	return r
}

// Wait blocks until background batches have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAndServe serves on addr until ctx is done, then shuts down and waits
// for a running batch to stop. ready, if non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if ready != nil {
		ready(ln.Addr().String())
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		fmt.Fprintf(s.log, "  %s %s %s %s\n", ui.Dim(r.Method), r.URL.Path, statusColor(rec.status), ui.Dim(time.Since(start).Truncate(time.Microsecond)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusColor(code int) string {
	s := fmt.Sprint(code)
	switch {
	case code >= 500:
		return ui.Red(s)
	case code >= 400:
		return ui.Yellow(s)
	default:
		return ui.Green(s)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var importErr *store.ImportFormatError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &importErr), errors.Is(err, task.ErrInvalid), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrInvalidTransition), errors.Is(err, pump.ErrBusy):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}
