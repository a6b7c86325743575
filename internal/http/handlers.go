package http

import (
	"context"
	"net/http"
	"time"

	"ledger/internal/auth"
	"ledger/internal/log"
)

func (s *Server) handleListByEvent(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.expenses.ListByEvent(r.Context(), r.PathValue("eventId"))
	if err != nil {
		s.writeOpError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.expenses.Summary(r.Context(), r.PathValue("eventId"))
	if err != nil {
		s.writeOpError(w, r, err, log.OpSummary)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFrom(r.Context())
	if !ok {
		s.writeError(w, r, auth.ErrUnauthenticated)
		return
	}

	in, err := decodeExpenseInput(r)
	if err != nil {
		s.writeOpError(w, r, err, log.OpCreate)
		return
	}

	expense, err := s.expenses.Create(r.Context(), caller, in)
	if err != nil {
		s.writeOpError(w, r, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFrom(r.Context())
	if !ok {
		s.writeError(w, r, auth.ErrUnauthenticated)
		return
	}

	in, err := decodeBulkInput(r)
	if err != nil {
		s.writeOpError(w, r, err, log.OpCreateBulk)
		return
	}

	created, err := s.expenses.CreateBulk(r.Context(), caller, in)
	if err != nil {
		s.writeOpError(w, r, err, log.OpCreateBulk)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	patch, err := decodePatch(r, id)
	if err != nil {
		s.writeOpError(w, r, err, log.OpUpdate)
		return
	}

	expense, err := s.expenses.Update(r.Context(), id, patch)
	if err != nil {
		s.writeOpError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeOpError(w, r, err, log.OpDelete)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted successfully"})
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports whether the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "store": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": "ok"})
}

