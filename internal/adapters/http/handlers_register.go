package web

import (
	"context"
	"net/http"

	"gymdesk/internal/application/orchestrators"
	"gymdesk/internal/application/wizard"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/registration"
	"gymdesk/internal/domain/role"
)

// Wizard actions accepted by POST /register.
const (
	actionSet      = "set"
	actionNext     = "next"
	actionBack     = "back"
	actionComplete = "complete"
)

// registerRequest sets any supplied fields, then runs Action.
type registerRequest struct {
	Action         string                 `json:"action"`
	Account        *registration.Account  `json:"account"`
	Personal       *registration.Personal `json:"personal"`
	SelectedPlanID *string                `json:"selectedPlanId"`
	AcceptTerms    *bool                  `json:"acceptTerms"`
	Role           *string                `json:"role"`
}

// registerResponse is the wizard state plus the outcome of completion.
type registerResponse struct {
	Wizard       wizard.View `json:"wizard"`
	NeedsConfirm bool        `json:"needsConfirm,omitempty"`
	MemberID     string      `json:"memberId,omitempty"`
	TrainerID    string      `json:"trainerId,omitempty"`
	PaymentID    string      `json:"paymentId,omitempty"`
	Home         string      `json:"home,omitempty"`
}

// handleRegisterView handles GET /register
func (s *Server) handleRegisterView(w http.ResponseWriter, r *http.Request) {
	wz := wizard.Mount(r.Context(), s.deps.KV, s.deps.Sessions.Current(), wizard.WithSecrets(s.secrets))
	writeJSON(w, http.StatusOK, registerResponse{Wizard: wz.View()})
}

// handleRegisterAction handles POST /register
func (s *Server) handleRegisterAction(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := strictDecode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	wz := wizard.Mount(ctx, s.deps.KV, s.deps.Sessions.Current(), wizard.WithSecrets(s.secrets))
	if err := applyRegisterFields(ctx, wz, req); err != nil {
		writeError(w, err)
		return
	}

	switch req.Action {
	case actionSet, "":
		writeJSON(w, http.StatusOK, registerResponse{Wizard: wz.View()})
	case actionNext:
		if !wz.Next() && len(wz.Errors()) > 0 {
			writeJSON(w, http.StatusUnprocessableEntity, registerResponse{Wizard: wz.View()})
			return
		}
		writeJSON(w, http.StatusOK, registerResponse{Wizard: wz.View()})
	case actionBack:
		wz.Back()
		writeJSON(w, http.StatusOK, registerResponse{Wizard: wz.View()})
	case actionComplete:
		s.completeRegistration(ctx, w, wz)
	default:
		writeError(w, apperr.Validation("action", "Unknown action "+req.Action))
	}
}

func applyRegisterFields(ctx context.Context, wz *wizard.Wizard, req registerRequest) error {
	if req.Role != nil {
		r, ok := role.Parse(*req.Role)
		if !ok {
			return apperr.Validation("role", "Choose member or trainer")
		}
		if err := wz.SetRole(ctx, r); err != nil {
			return err
		}
	}
	if req.Account != nil {
		wz.SetAccount(*req.Account)
	}
	if req.Personal != nil {
		wz.SetPersonal(*req.Personal)
	}
	if req.SelectedPlanID != nil {
		wz.SelectPlan(*req.SelectedPlanID)
	}
	if req.AcceptTerms != nil {
		wz.SetAcceptTerms(*req.AcceptTerms)
	}
	return nil
}

func (s *Server) completeRegistration(ctx context.Context, w http.ResponseWriter, wz *wizard.Wizard) {
	deps := orchestrators.CompleteRegistrationDeps{
		Resolver: s.deps.Resolver,
		Sessions: s.deps.Sessions,
		Members:  s.deps.Clients.Members,
		Trainers: s.deps.Clients.Trainers,
		Payments: s.deps.Clients.Payments,
		Recorder: s.deps.Metrics,
	}
	var result orchestrators.CompleteRegistrationResult
	reg := wizard.RegistrarFunc(func(ctx context.Context, sub wizard.Submission) error {
		res, err := orchestrators.ExecuteCompleteRegistration(ctx, sub, deps)
		result = res
		return err
	})

	if err := wz.Complete(ctx, reg); err != nil {
		writeJSON(w, apperr.HTTPStatus(err), registerResponse{Wizard: wz.View()})
		return
	}

	resp := registerResponse{
		Wizard:       wz.View(),
		NeedsConfirm: result.NeedsConfirm,
		MemberID:     result.MemberID,
		TrainerID:    result.TrainerID,
		PaymentID:    result.PaymentID,
	}
	if cur := s.deps.Sessions.Current(); cur.User != nil {
		resp.Home = cur.Role().Home()
	}
	writeJSON(w, http.StatusCreated, resp)
}
