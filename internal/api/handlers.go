package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
)

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// parseQuery builds a store query from URL parameters.
func parseQuery(r *http.Request) (store.Query, error) {
	v := r.URL.Query()
	var q store.Query

	for _, s := range splitList(v.Get("status")) {
		st := task.Status(s)
		if !st.Valid() {
			return q, badRequest("unknown status %q", s)
		}
		q.Statuses = append(q.Statuses, st)
	}
	for _, s := range splitList(v.Get("priority")) {
		p := task.Priority(s)
		if !p.Valid() {
			return q, badRequest("unknown priority %q", s)
		}
		q.Priorities = append(q.Priorities, p)
	}
	for _, s := range splitList(v.Get("category")) {
		c := task.Category(s)
		if !c.Valid() {
			return q, badRequest("unknown category %q", s)
		}
		q.Categories = append(q.Categories, c)
	}
	q.Text = v.Get("q")

	boolParam := func(name string) (bool, bool, error) {
		raw := v.Get(name)
		if raw == "" {
			return false, false, nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false, false, badRequest("%s must be a boolean", name)
		}
		return b, true, nil
	}
	var err error
	if q.IncludeArchived, _, err = boolParam("archived"); err != nil {
		return q, err
	}
	if q.Desc, _, err = boolParam("desc"); err != nil {
		return q, err
	}
	approved, set, err := boolParam("approved")
	if err != nil {
		return q, err
	}
	if set {
		q.Approved = &approved
	}

	if q.SortBy, err = store.ParseSortField(v.Get("sort")); err != nil {
		return q, badRequest("%v", err)
	}
	for name, dst := range map[string]*int{"offset": &q.Offset, "limit": &q.Limit} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, badRequest("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return q, nil
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks := s.store.Query(q)
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in task.CreateInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.store.Create(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	t, ok := s.store.Get(taskID)
	if !ok {
		writeError(w, &store.NotFoundError{ID: taskID})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var p task.Patch
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.store.Update(mux.Vars(r)["taskID"], p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(mux.Vars(r)["taskID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) archiveTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Archive(mux.Vars(r)["taskID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) unarchiveTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Unarchive(mux.Vars(r)["taskID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) applyEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := task.ParseEvent(vars["event"])
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	t, err := s.store.Apply(vars["taskID"], e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Statistics())
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	doc, err := s.store.Export(ids...)
	if err != nil {
		writeError(w, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		data, err := store.Encode(doc)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	case "yaml", "yml":
		data, err := store.EncodeYAML(doc)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(data)
	default:
		writeError(w, badRequest("format must be json or yaml"))
	}
}

func (s *Server) importTasks(w http.ResponseWriter, r *http.Request) {
	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, badRequest("read body: %v", err))
		return
	}
	n, err := s.store.ImportBytes(data, overwrite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// startRun starts a batch in the background and returns immediately.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	strategy, err := agent.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	if s.pump.Running() {
		writeError(w, pump.ErrBusy)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sum, err := s.pump.RunBatch(s.ctx, strategy)
		switch {
		case errors.Is(err, pump.ErrBusy):
			return
		case err != nil:
			s.logf("%s batch %s: %v", ui.Red("❌"), sum.RunID, err)
		default:
			s.logf("%s batch %s: %d completed, %d need review, %d skipped", ui.Green("✅"), sum.RunID, sum.Successful, sum.Failed, sum.Skipped)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"strategy": strategy.String(), "status": "started"})
}

func (s *Server) currentRun(w http.ResponseWriter, r *http.Request) {
	prog, ok := s.pump.Current()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no batch has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(s.log, "  "+format+"\n", args...)
}
