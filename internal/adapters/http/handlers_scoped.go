package web

import (
	"net/http"

	"gymdesk/internal/application/orchestrators"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/class"
	"gymdesk/internal/domain/member"
	"gymdesk/internal/domain/trainer"
)

// ownTrainer returns the trainer record linked to the signed-in account.
func (s *Server) ownTrainer(r *http.Request) (trainer.Trainer, error) {
	u, err := currentUser(r)
	if err != nil {
		return trainer.Trainer{}, err
	}
	page, err := s.deps.Clients.Trainers.List(r.Context(), resource.Filters{}.Where("accountId", u.ID), 1, 1)
	if err != nil {
		return trainer.Trainer{}, err
	}
	if len(page.Data) == 0 {
		return trainer.Trainer{}, apperr.NotFound(resource.Trainers.Name, u.ID)
	}
	return page.Data[0], nil
}

// ownMember returns the member record linked to the signed-in account.
func (s *Server) ownMember(r *http.Request) (member.Member, error) {
	u, err := currentUser(r)
	if err != nil {
		return member.Member{}, err
	}
	page, err := s.deps.Clients.Members.List(r.Context(), resource.Filters{}.Where("accountId", u.ID), 1, 1)
	if err != nil {
		return member.Member{}, err
	}
	if len(page.Data) == 0 {
		return member.Member{}, apperr.NotFound(resource.Members.Name, u.ID)
	}
	return page.Data[0], nil
}

// handleTrainerHome handles GET /trainer
func (s *Server) handleTrainerHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.ownTrainer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	classes, err := s.deps.Clients.Classes.Upcoming(ctx, resource.Filters{}.Where("trainerId", t.ID), 1, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trainer": t,
		"classes": classes,
	})
}

// handleTrainerClasses handles GET /trainer/classes
func (s *Server) handleTrainerClasses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.ownTrainer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f, page, limit, err := parseListRequest(r.URL.Query(), resource.Classes)
	if err != nil {
		writeError(w, err)
		return
	}
	classes, err := s.deps.Clients.Classes.Upcoming(ctx, f.Where("trainerId", t.ID), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

// handleTrainerCreateClass handles POST /trainer/classes
// The class is always assigned to the signed-in trainer.
func (s *Server) handleTrainerCreateClass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.ownTrainer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var c class.Class
	if err := strictDecode(r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.TrainerID = t.ID
	created, err := s.deps.Clients.Classes.Create(ctx, c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleMemberHome handles GET /member
func (s *Server) handleMemberHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.ownMember(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bookings, err := s.deps.Clients.Bookings.List(ctx, resource.Filters{}.Where("memberId", m.ID), 1, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member":   m,
		"bookings": bookings,
	})
}

// handleMemberClasses handles GET /member/classes
func (s *Server) handleMemberClasses(w http.ResponseWriter, r *http.Request) {
	f, page, limit, err := parseListRequest(r.URL.Query(), resource.Classes)
	if err != nil {
		writeError(w, err)
		return
	}
	classes, err := s.deps.Clients.Classes.Upcoming(r.Context(), f, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

// handleMemberEnroll handles POST /member/enroll
func (s *Server) handleMemberEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.ownMember(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in struct {
		ClassID string `json:"classId"`
	}
	if err := readBody(r, &in, map[string]func(string){
		"classId": func(v string) { in.ClassID = v },
	}); err != nil {
		writeError(w, err)
		return
	}

	b, err := orchestrators.ExecuteEnrollInClass(ctx, orchestrators.EnrollInClassInput{
		MemberID: m.ID,
		ClassID:  in.ClassID,
	}, orchestrators.EnrollInClassDeps{
		Classes:  s.deps.Clients.Classes,
		Bookings: s.deps.Clients.Bookings,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleMemberCancel handles POST /member/bookings/{id}/cancel
func (s *Server) handleMemberCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.ownMember(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := orchestrators.ExecuteCancelBooking(ctx, orchestrators.CancelBookingInput{
		BookingID: r.PathValue("id"),
		MemberID:  m.ID,
	}, orchestrators.CancelBookingDeps{Bookings: s.deps.Clients.Bookings})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
