package web

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gymdesk/internal/application/listutil"
	"gymdesk/internal/application/optimistic"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/booking"
	"gymdesk/internal/domain/member"
	"gymdesk/internal/domain/payment"
	"gymdesk/internal/domain/registration"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/trainer"
)

// parseListRequest turns list query parameters into Filters for c.
// Recognised: q, sort, dir, page, limit, from, to and c's filter fields.
func parseListRequest(q url.Values, c resource.Collection) (resource.Filters, int, int, error) {
	lp := listutil.ParseListParams(q, c.SortFields, c.FilterFields)
	f := resource.Filters{Equal: lp.Filters, Search: lp.Search}
	if lp.Sort != "" {
		f = f.OrderBy(lp.Sort, lp.Dir == "desc")
	}
	if lp.From != "" || lp.To != "" {
		rng, err := resource.ParseRange(c.DefaultRange(), lp.From, lp.To)
		if err != nil {
			return f, 0, 0, err
		}
		f = f.Within(rng)
	}
	return f, lp.Page, lp.Limit, nil
}

// handleLanding handles GET /
// Programs are listed with their markdown descriptions rendered to HTML.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Clients.Programs.List(r.Context(), resource.Filters{}.OrderBy("name", false), 1, listutil.MaxLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	type programView struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Level           string `json:"level"`
		DurationWeeks   int    `json:"durationWeeks,omitempty"`
		DescriptionHTML string `json:"descriptionHtml"`
	}
	programs := make([]programView, 0, len(page.Data))
	for _, p := range page.Data {
		html, err := p.RenderDescription()
		if err != nil {
			internalError(w, err)
			return
		}
		programs = append(programs, programView{
			ID:              p.ID,
			Name:            p.Name,
			Level:           p.Level,
			DurationWeeks:   p.DurationWeeks,
			DescriptionHTML: html,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"programs": programs,
		"plans":    registration.Plans,
	})
}

// handleOwnerDashboard handles GET /owner
func (s *Server) handleOwnerDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := s.deps.Clients
	counts := []struct {
		key   string
		count func() (int, error)
	}{
		{"activeMembers", func() (int, error) {
			return c.Members.Count(ctx, resource.Filters{}.Where(resource.FieldStatus, member.StatusActive))
		}},
		{"activeTrainers", func() (int, error) {
			return c.Trainers.Count(ctx, resource.Filters{}.Where(resource.FieldStatus, trainer.StatusActive))
		}},
		{"classes", func() (int, error) { return c.Classes.Count(ctx, resource.Filters{}) }},
		{"programs", func() (int, error) { return c.Programs.Count(ctx, resource.Filters{}) }},
		{"confirmedBookings", func() (int, error) {
			return c.Bookings.Count(ctx, resource.Filters{}.Where(resource.FieldStatus, booking.StatusConfirmed))
		}},
		{"pendingPayments", func() (int, error) {
			return c.Payments.Count(ctx, resource.Filters{}.Where(resource.FieldStatus, payment.StatusPending))
		}},
	}

	out := make(map[string]int, len(counts))
	for _, entry := range counts {
		n, err := entry.count()
		if err != nil {
			writeError(w, err)
			return
		}
		out[entry.key] = n
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOwnerPerf handles GET /owner/perf
// ?minutes= selects the window (default 60).
func (s *Server) handleOwnerPerf(w http.ResponseWriter, r *http.Request) {
	minutes, err := strconv.Atoi(r.URL.Query().Get("minutes"))
	if err != nil || minutes <= 0 {
		minutes = 60
	}
	snap := s.deps.Perf.Snapshot(timeNow().Add(-time.Duration(minutes)*time.Minute), 10)
	writeJSON(w, http.StatusOK, snap)
}

// handleOwnerSetRole handles POST /owner/accounts/{id}/role
func (s *Server) handleOwnerSetRole(w http.ResponseWriter, r *http.Request) {
	if s.deps.Roles == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "Roles are managed by the hosted identity provider"})
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if err := readBody(r, &in, map[string]func(string){
		"role": func(v string) { in.Role = v },
	}); err != nil {
		writeError(w, err)
		return
	}
	rl, ok := role.Parse(in.Role)
	if !ok {
		writeError(w, apperr.Validation("role", "Role must be owner, trainer or member"))
		return
	}
	if err := s.deps.Roles.SetAppRole(r.Context(), r.PathValue("id"), rl); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// workspace resolves the {collection} path segment.
func (s *Server) workspace(r *http.Request) (optimistic.Workspace, error) {
	name := r.PathValue("collection")
	ws, ok := s.workspaces[name]
	if !ok {
		return nil, apperr.NotFound("collections", name)
	}
	return ws, nil
}

// handleCollectionList handles GET /owner/{collection}
// The loaded page becomes the collection's working copy.
func (s *Server) handleCollectionList(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f, page, limit, err := parseListRequest(r.URL.Query(), ws.Collection())
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := ws.Load(r.Context(), f, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCollectionCreate handles POST /owner/{collection}
func (s *Server) handleCollectionCreate(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, apperr.Validation("", "Invalid request body"))
		return
	}
	res, err := ws.CreateJSON(r.Context(), body)
	if err != nil {
		writeMutationError(w, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res.Record)
}

// handleCollectionGet handles GET /owner/{collection}/{id}
func (s *Server) handleCollectionGet(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := ws.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCollectionUpdate handles PATCH /owner/{collection}/{id}
func (s *Server) handleCollectionUpdate(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	patch := resource.Patch{}
	if err := strictDecode(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	res, err := ws.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeMutationError(w, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res.Record)
}

// handleCollectionDelete handles DELETE /owner/{collection}/{id}
func (s *Server) handleCollectionDelete(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := ws.Remove(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMutationError(w, err, res)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
