// Package wizard drives the multi-step sign-up flow over a durable draft.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/registration"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

// Storage keys.
const (
	DraftKey = "gymdesk.register-draft"
	RoleKey  = "gymdesk.register-role"
)

const persistTimeout = 5 * time.Second

// KV is the durable storage the draft lives in.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Submission is what a Registrar receives at completion.
type Submission struct {
	Draft    registration.Draft
	Role     role.Role
	SignedIn *session.User // set when the wizard was mounted with an active session
}

// Registrar performs the actual registration.
type Registrar interface {
	Register(ctx context.Context, sub Submission) error
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(ctx context.Context, sub Submission) error

// Register calls f.
func (f RegistrarFunc) Register(ctx context.Context, sub Submission) error {
	return f(ctx, sub)
}

// View is the wizard state handed to presentation. The password is never echoed.
type View struct {
	Step           registration.Step     `json:"step"`
	StepName       string                `json:"stepName"`
	FirstStep      registration.Step     `json:"firstStep"`
	Email          string                `json:"email"`
	HasPassword    bool                  `json:"hasPassword"`
	Personal       registration.Personal `json:"personal"`
	SelectedPlanID string                `json:"selectedPlanId"`
	AcceptTerms    bool                  `json:"acceptTerms"`
	Role           role.Role             `json:"role"`
	Errors         map[string]string     `json:"errors,omitempty"`
	Error          string                `json:"error,omitempty"`
	Completed      bool                  `json:"completed"`
	Plans          []registration.Plan   `json:"plans"`
}

// Secrets holds the account password in process memory. It is never
// written to the KV, so a draft resumed after a restart asks for it again.
type Secrets struct {
	mu       sync.Mutex
	password string
}

func (s *Secrets) get() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password
}

func (s *Secrets) set(password string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.password = password
	s.mu.Unlock()
}

// MountOption configures Mount.
type MountOption func(*Wizard)

// WithSecrets keeps the password across mounts that share s. Without it the
// password lives only as long as the mounted Wizard.
func WithSecrets(s *Secrets) MountOption {
	return func(w *Wizard) { w.secrets = s }
}

// Wizard is one mounted registration flow.
// INVARIANT: first <= draft.Step <= registration.LastStep
// INVARIANT: the persisted draft never carries the password
type Wizard struct {
	kv      KV
	secrets *Secrets

	mu        sync.Mutex
	draft     registration.Draft
	first     registration.Step
	user      *session.User
	pref      role.Role
	errs      map[string]string
	lastErr   string
	completed bool
}

// Mount restores the persisted draft, or starts a new one.
// With an active session the account step is skipped and the email prefilled.
// Without one, a draft past the account step whose password is no longer
// held in memory goes back to the account step.
// PRE: kv is non-nil
// POST: the draft is persisted; corrupt drafts are discarded
func Mount(ctx context.Context, kv KV, current session.Session, opts ...MountOption) *Wizard {
	w := &Wizard{kv: kv, first: registration.StepAccount, pref: role.Member, errs: map[string]string{}}
	for _, opt := range opts {
		opt(w)
	}

	if raw, ok, err := kv.Get(ctx, RoleKey); err != nil {
		slog.Warn("wizard_role_load_failed", "error", err)
	} else if ok {
		if r := role.Role(strings.TrimSpace(raw)); r == role.Member || r == role.Trainer {
			w.pref = r
		}
	}

	w.draft = loadDraft(ctx, kv)
	w.draft.Account.Password = w.secrets.get()

	if current.IsAuthenticated() {
		u := *current.User
		w.user = &u
		w.first = registration.StepPersonal
		w.draft.Account = registration.Account{Email: u.Email}
		if w.draft.Step < w.first {
			w.draft.Step = w.first
		}
	} else if w.draft.Step > registration.StepAccount && w.draft.Account.Password == "" {
		slog.Info("wizard_password_required", "from_step", w.draft.Step.String())
		w.draft.Step = registration.StepAccount
	}

	w.mu.Lock()
	w.persistLocked()
	w.mu.Unlock()
	return w
}

func loadDraft(ctx context.Context, kv KV) registration.Draft {
	raw, ok, err := kv.Get(ctx, DraftKey)
	if err != nil {
		slog.Warn("wizard_draft_load_failed", "error", err)
		return registration.Draft{}
	}
	if !ok {
		return registration.Draft{}
	}
	var d registration.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil || !d.Step.IsValid() {
		slog.Info("wizard_draft_discarded", "reason", "corrupt")
		if err := kv.Delete(ctx, DraftKey); err != nil {
			slog.Warn("wizard_draft_delete_failed", "error", err)
		}
		return registration.Draft{}
	}
	return d
}

// View returns the current state.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := make(map[string]string, len(w.errs))
	for k, v := range w.errs {
		errs[k] = v
	}
	return View{
		Step:           w.draft.Step,
		StepName:       w.draft.Step.String(),
		FirstStep:      w.first,
		Email:          w.draft.Account.Email,
		HasPassword:    w.draft.Account.Password != "",
		Personal:       w.draft.Personal,
		SelectedPlanID: w.draft.SelectedPlanID,
		AcceptTerms:    w.draft.AcceptTerms,
		Role:           w.pref,
		Errors:         errs,
		Error:          w.lastErr,
		Completed:      w.completed,
		Plans:          registration.Plans,
	}
}

// Step returns the current step.
func (w *Wizard) Step() registration.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Step
}

// Errors returns a copy of the field errors from the last Next.
func (w *Wizard) Errors() map[string]string {
	return w.View().Errors
}

// Draft returns a copy of the draft.
func (w *Wizard) Draft() registration.Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// SetAccount stores the credentials. Ignored when a session already exists.
func (w *Wizard) SetAccount(a registration.Account) {
	w.update(func(d *registration.Draft) {
		if w.user != nil {
			return
		}
		d.Account = registration.Account{Email: strings.TrimSpace(a.Email), Password: a.Password}
		w.secrets.set(a.Password)
	})
}

// SetPersonal stores contact details.
func (w *Wizard) SetPersonal(p registration.Personal) {
	w.update(func(d *registration.Draft) { d.Personal = p })
}

// SelectPlan stores the chosen plan id.
func (w *Wizard) SelectPlan(id string) {
	w.update(func(d *registration.Draft) { d.SelectedPlanID = strings.TrimSpace(id) })
}

// SetAcceptTerms stores the terms checkbox.
func (w *Wizard) SetAcceptTerms(v bool) {
	w.update(func(d *registration.Draft) { d.AcceptTerms = v })
}

// SetRole stores the role preference used at sign-up.
func (w *Wizard) SetRole(ctx context.Context, r role.Role) error {
	if r != role.Member && r != role.Trainer {
		return apperr.Validation("role", "Choose member or trainer")
	}
	w.mu.Lock()
	w.pref = r
	w.mu.Unlock()
	if err := w.kv.Set(ctx, RoleKey, string(r)); err != nil {
		slog.Warn("wizard_role_persist_failed", "error", err)
	}
	return nil
}

// Next advances one step if the current step validates.
// POST: returns false and records field errors when validation fails;
// the step never moves past registration.LastStep
func (w *Wizard) Next() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := w.draft.ValidateStep(w.draft.Step)
	w.lastErr = ""
	if len(errs) > 0 {
		w.errs = errs
		return false
	}
	w.errs = map[string]string{}
	if w.draft.Step >= registration.LastStep {
		return false
	}
	w.draft.Step++
	w.persistLocked()
	return true
}

// Back moves one step back and clears errors. It never goes below the first reachable step.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errs = map[string]string{}
	w.lastErr = ""
	if w.draft.Step > w.first {
		w.draft.Step--
		w.persistLocked()
	}
}

// Complete runs the registration from the payment step.
// POST: on success the draft is deleted; on failure it is kept and the
// error is returned and surfaced in View().Error
func (w *Wizard) Complete(ctx context.Context, reg Registrar) error {
	w.mu.Lock()
	if w.draft.Step != registration.LastStep {
		w.mu.Unlock()
		return apperr.Validation("step", "Finish the previous steps first")
	}
	for s := w.first; s < registration.LastStep; s++ {
		if errs := w.draft.ValidateStep(s); len(errs) > 0 {
			w.errs = errs
			w.draft.Step = s
			w.persistLocked()
			w.mu.Unlock()
			return firstFieldError(errs)
		}
	}
	sub := Submission{Draft: w.draft, Role: w.pref}
	if w.user != nil {
		u := *w.user
		sub.SignedIn = &u
	}
	w.mu.Unlock()

	err := apperr.Wrap(reg.Register(ctx, sub))

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.lastErr = err.Error()
		var ve *apperr.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			w.errs = map[string]string{ve.Field: ve.Message}
		}
		slog.Info("wizard_complete_failed", "error", err)
		return err
	}
	w.completed = true
	w.lastErr = ""
	w.errs = map[string]string{}
	w.draft = registration.Draft{Step: w.first}
	w.secrets.set("")
	if err := w.kv.Delete(ctx, DraftKey); err != nil {
		slog.Warn("wizard_draft_delete_failed", "error", err)
	}
	slog.Info("wizard_completed", "role", string(sub.Role))
	return nil
}

func (w *Wizard) update(fn func(*registration.Draft)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.draft)
	w.persistLocked()
}

// persistLocked writes the draft without its password. Failures are logged;
// memory is kept.
// PRE: w.mu is held
func (w *Wizard) persistLocked() {
	d := w.draft
	d.Account.Password = ""
	b, err := json.Marshal(d)
	if err != nil {
		slog.Error("wizard_draft_encode_failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := w.kv.Set(ctx, DraftKey, string(b)); err != nil {
		slog.Warn("wizard_draft_persist_failed", "error", err)
	}
}

// firstFieldError returns the errs entry that sorts first as a ValidationError.
func firstFieldError(errs map[string]string) error {
	field := ""
	for k := range errs {
		if field == "" || k < field {
			field = k
		}
	}
	return apperr.Validation(field, errs[field])
}
