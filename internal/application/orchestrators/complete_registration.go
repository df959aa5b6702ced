package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"gymdesk/internal/application/wizard"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/member"
	"gymdesk/internal/domain/payment"
	"gymdesk/internal/domain/registration"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
	"gymdesk/internal/domain/trainer"
)

// ResolverForRegistration defines the resolver call needed by CompleteRegistration.
type ResolverForRegistration interface {
	SignUp(ctx context.Context, email, password string, userMetadata map[string]any) session.Session
}

// MemberCreator creates member records.
type MemberCreator interface {
	Create(ctx context.Context, m member.Member) (member.Member, error)
}

// TrainerCreator creates trainer records.
type TrainerCreator interface {
	Create(ctx context.Context, t trainer.Trainer) (trainer.Trainer, error)
}

// PaymentCreator creates payment records.
type PaymentCreator interface {
	Create(ctx context.Context, p payment.Payment) (payment.Payment, error)
}

// CompleteRegistrationDeps holds dependencies for CompleteRegistration.
type CompleteRegistrationDeps struct {
	Resolver ResolverForRegistration
	Sessions SessionWriter
	Members  MemberCreator
	Trainers TrainerCreator
	Payments PaymentCreator
	Recorder AuthEventRecorder
}

// CompleteRegistrationResult reports what was created.
type CompleteRegistrationResult struct {
	Session      session.Session
	NeedsConfirm bool // the provider wants the email confirmed before sign-in
	MemberID     string
	TrainerID    string
	PaymentID    string
}

// ExecuteCompleteRegistration signs the user up (unless already signed in) and
// creates their profile record. Members also get a pending payment for the plan.
// PRE: every wizard step before Payment validates
// POST: profile record exists; payment processing itself is not performed
func ExecuteCompleteRegistration(ctx context.Context, input wizard.Submission, deps CompleteRegistrationDeps) (CompleteRegistrationResult, error) {
	d := input.Draft
	r := input.Role
	if r != role.Trainer {
		r = role.Member
	}
	plan, ok := registration.FindPlan(d.SelectedPlanID)
	if r == role.Member && !ok {
		return CompleteRegistrationResult{}, apperr.Validation(registration.FieldPlan, "Select a plan")
	}

	var res CompleteRegistrationResult
	accountID := ""
	email := strings.TrimSpace(d.Account.Email)

	if input.SignedIn != nil {
		accountID = input.SignedIn.ID
		email = input.SignedIn.Email
	} else {
		meta := map[string]any{
			"role":       string(r),
			"full_name":  d.Personal.FullName(),
			"first_name": strings.TrimSpace(d.Personal.FirstName),
			"last_name":  strings.TrimSpace(d.Personal.LastName),
			"phone":      strings.TrimSpace(d.Personal.Phone),
		}
		s := deps.Resolver.SignUp(ctx, email, d.Account.Password, meta)
		if s.Status == session.StatusFailed {
			slog.Info("registration_event", "event", "sign_up_failed", "email", email)
			return CompleteRegistrationResult{}, apperr.Conflict(failureMessage(s))
		}
		res.Session = s
		if s.User != nil {
			accountID = s.User.ID
			if deps.Sessions != nil {
				deps.Sessions.AuthSuccess(*s.User, s.Token)
			}
		} else {
			res.NeedsConfirm = true
		}
		recordAuth(deps.Recorder, "sign_up")
	}

	if r == role.Trainer {
		t, err := deps.Trainers.Create(ctx, trainer.Trainer{
			AccountID: accountID,
			Name:      d.Personal.FullName(),
			Email:     email,
			Status:    trainer.StatusActive,
		})
		if err != nil {
			return res, err
		}
		res.TrainerID = t.ID
		slog.Info("registration_event", "event", "trainer_registered", "trainer_id", t.ID)
		return res, nil
	}

	m, err := deps.Members.Create(ctx, member.Member{
		AccountID: accountID,
		Name:      d.Personal.FullName(),
		Email:     email,
		Phone:     strings.TrimSpace(d.Personal.Phone),
		PlanID:    plan.ID,
		Status:    member.StatusActive,
	})
	if err != nil {
		return res, err
	}
	res.MemberID = m.ID

	p, err := deps.Payments.Create(ctx, payment.Payment{
		MemberID: m.ID,
		PlanID:   plan.ID,
		Amount:   plan.MonthlyPrice,
		Currency: payment.DefaultCurrency,
		Status:   payment.StatusPending,
	})
	if err != nil {
		return res, err
	}
	res.PaymentID = p.ID

	slog.Info("registration_event", "event", "member_registered", "member_id", m.ID, "plan", plan.ID)
	return res, nil
}

// Registrar adapts ExecuteCompleteRegistration to the wizard.
func Registrar(deps CompleteRegistrationDeps) wizard.Registrar {
	return wizard.RegistrarFunc(func(ctx context.Context, sub wizard.Submission) error {
		_, err := ExecuteCompleteRegistration(ctx, sub, deps)
		return err
	})
}
