package http

import (
	"errors"
	"net/http"

	"elsa/internal/core"
	applog "elsa/internal/log"
	"elsa/internal/storage"
)

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrEmptyCategory,
	core.ErrEmptyDescription,
	core.ErrEmptyPersonName,
	core.ErrEmptyTitle,
	core.ErrInvalidDate,
	core.ErrDescriptionLength,
}

func isValidation(err error) bool {
	var fe *fieldError
	if errors.As(err, &fe) {
		return true
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// parseBody reads the request body, writing a 400 on malformed input.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError(msgInvalidRequest).Write(w)
		return nil, false
	}
	return p, true
}

// writeError maps a record operation error onto a response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError(msgNotFound).Write(w)
	case errors.Is(err, core.ErrEmptyOwner):
		UnauthorizedError().Write(w)
	case isValidation(err):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Record operation failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", ""))
		InternalServerError().Write(w)
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	t, err := parseTransaction(p, owner, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.deps.Records.AddTransaction(r.Context(), t)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(toTransactionDTO(created)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	t, err := parseTransaction(p, owner, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	t.ID = r.PathValue("id")
	updated, err := s.deps.Records.EditTransaction(r.Context(), t)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewResponse().JSON(toTransactionDTO(updated)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Records.RemoveTransaction(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request, owner string) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	d, err := parseDebt(p, owner)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.deps.Records.AddDebt(r.Context(), d)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(toDebtDTO(created)).Write(w)
}

func (s *Server) handleSetDebtPaid(w http.ResponseWriter, r *http.Request, owner string) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	paid, err := parsePaid(p)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.deps.Records.SettleDebt(r.Context(), owner, r.PathValue("id"), paid); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Records.RemoveDebt(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, owner string) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	g, err := parseGoal(p, owner)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.deps.Records.AddGoal(r.Context(), g)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(toGoalDTO(created)).Write(w)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request, owner string) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	amount, err := parseContribution(p)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	g, err := s.deps.Records.Contribute(r.Context(), owner, r.PathValue("id"), amount)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewResponse().JSON(toGoalDTO(g)).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Records.RemoveGoal(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
