package http

import (
	"net/http"

	applog "elsa/internal/log"
)

// handleChart returns the owner's expense chart. When the change
// subscription could not be acquired the last known chart is still served
// and X-Live tells the client to poll.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, owner string) {
	session, err := s.deps.Hub.Session(r.Context(), owner)
	if session == nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	live := "true"
	if err != nil || !session.Live() {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Serving chart without live updates",
			applog.FieldOwner, owner, applog.FieldError, err)
		live = "false"
	}
	NewResponse().Header("X-Live", live).JSON(session.Chart(r.Context())).Write(w)
}
