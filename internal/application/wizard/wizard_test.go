package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/registration"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

type mockKV struct {
	data    map[string]string
	failSet bool
}

func newMockKV() *mockKV { return &mockKV{data: map[string]string{}} }

func (m *mockKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockKV) Set(_ context.Context, key, value string) error {
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[key] = value
	return nil
}

func (m *mockKV) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mockKV) draft(t *testing.T) registration.Draft {
	t.Helper()
	raw, ok := m.data[DraftKey]
	if !ok {
		t.Fatal("no persisted draft")
	}
	var d registration.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	return d
}

func signedIn() session.Session {
	return session.Session{
		Token:  "tok",
		User:   &session.User{ID: "u1", Name: "Ann", Email: "ann@example.com", Role: role.Member},
		Status: session.StatusSucceeded,
	}
}

func fillToPayment(w *Wizard) {
	w.SetAccount(registration.Account{Email: "new@example.com", Password: "secret1"})
	w.Next()
	w.SetPersonal(registration.Personal{FirstName: "Ann", LastName: "Lee", Phone: "555"})
	w.Next()
	w.SelectPlan("plus")
	w.Next()
	w.SetAcceptTerms(true)
	w.Next()
}

// TestMount_FreshDraftPersisted verifies the first entry creates a draft.
func TestMount_FreshDraftPersisted(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, session.Empty())

	if w.Step() != registration.StepAccount {
		t.Errorf("step = %v", w.Step())
	}
	if d := kv.draft(t); d.Step != registration.StepAccount {
		t.Errorf("persisted step = %v", d.Step)
	}
	if w.View().Role != role.Member {
		t.Errorf("role = %q", w.View().Role)
	}
}

// TestNext_PersonalRequiresFirstName verifies gating on the personal step.
func TestNext_PersonalRequiresFirstName(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, signedIn())
	w.SetPersonal(registration.Personal{FirstName: "", LastName: "Lee", Phone: "555"})

	if w.Next() {
		t.Fatal("Next advanced")
	}
	if w.Step() != registration.StepPersonal {
		t.Errorf("step = %v", w.Step())
	}
	if _, ok := w.Errors()[registration.FieldFirstName]; !ok {
		t.Errorf("errors = %v", w.Errors())
	}
}

// TestNext_ShortPassword verifies the account step keeps step 0 with a password error.
func TestNext_ShortPassword(t *testing.T) {
	w := Mount(context.Background(), newMockKV(), session.Empty())
	w.SetAccount(registration.Account{Email: "owner1@example.com", Password: "abcd"})

	if w.Next() {
		t.Fatal("Next advanced")
	}
	if w.Step() != 0 {
		t.Errorf("step = %d", w.Step())
	}
	if got := w.Errors()[registration.FieldPassword]; got != "Password must be at least 6 characters" {
		t.Errorf("password error = %q", got)
	}
}

func heldPassword(p string) *Secrets {
	s := &Secrets{}
	s.set(p)
	return s
}

// TestMount_ResumesDraft verifies a remount lands on the persisted step only
// while the password is still held in memory.
func TestMount_ResumesDraft(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		secrets  *Secrets
		wantStep registration.Step
		wantPass bool
	}{
		{"passwordHeld", `{"step":2,"account":{"email":"a@b.co"},"personal":{"firstName":"A","lastName":"B","phone":"1"},"selectedPlanId":"plus"}`,
			heldPassword("secret"), registration.StepPlan, true},
		{"passwordForgotten", `{"step":2,"account":{"email":"a@b.co"},"personal":{"firstName":"A","lastName":"B","phone":"1"},"selectedPlanId":"plus"}`,
			nil, registration.StepAccount, false},
		{"storedPasswordIgnored", `{"step":2,"account":{"email":"a@b.co","password":"secret"},"personal":{"firstName":"A","lastName":"B","phone":"1"},"selectedPlanId":"plus"}`,
			nil, registration.StepAccount, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMockKV()
			kv.data[DraftKey] = tt.raw

			w := Mount(context.Background(), kv, session.Empty(), WithSecrets(tt.secrets))
			if w.Step() != tt.wantStep {
				t.Errorf("step = %v, want %v", w.Step(), tt.wantStep)
			}
			v := w.View()
			if v.HasPassword != tt.wantPass || v.Email != "a@b.co" || v.SelectedPlanID != "plus" {
				t.Errorf("view = %+v", v)
			}
			if strings.Contains(kv.data[DraftKey], "secret") {
				t.Errorf("persisted draft carries the password: %s", kv.data[DraftKey])
			}
		})
	}
}

// TestPersist_OmitsPassword verifies the password stays in memory only.
func TestPersist_OmitsPassword(t *testing.T) {
	kv := newMockKV()
	secrets := &Secrets{}
	w := Mount(context.Background(), kv, session.Empty(), WithSecrets(secrets))
	fillToPayment(w)

	if strings.Contains(kv.data[DraftKey], "secret1") || kv.draft(t).Account.Password != "" {
		t.Fatalf("persisted draft carries the password: %s", kv.data[DraftKey])
	}
	if w.Draft().Account.Password != "secret1" || !w.View().HasPassword {
		t.Error("password lost from memory")
	}

	again := Mount(context.Background(), kv, session.Empty(), WithSecrets(secrets))
	if again.Step() != registration.StepPayment || again.Draft().Account.Password != "secret1" {
		t.Errorf("shared secrets not restored: step %v", again.Step())
	}

	if err := again.Complete(context.Background(), RegistrarFunc(func(context.Context, Submission) error { return nil })); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if secrets.get() != "" {
		t.Error("password kept after completion")
	}
}

// TestMount_CorruptDraft verifies a bad draft falls back to defaults.
func TestMount_CorruptDraft(t *testing.T) {
	for name, raw := range map[string]string{
		"notJSON":   "{step:",
		"wrongType": `{"step":"two"}`,
		"badStep":   `{"step":7}`,
	} {
		t.Run(name, func(t *testing.T) {
			kv := newMockKV()
			kv.data[DraftKey] = raw
			w := Mount(context.Background(), kv, session.Empty())
			if w.Step() != registration.StepAccount {
				t.Errorf("step = %v", w.Step())
			}
			if d := kv.draft(t); d != (registration.Draft{}) {
				t.Errorf("persisted = %+v", d)
			}
		})
	}
}

// TestMount_SessionSkipsAccount verifies the account step is skipped and prefilled.
func TestMount_SessionSkipsAccount(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, signedIn())

	if w.Step() != registration.StepPersonal {
		t.Errorf("step = %v", w.Step())
	}
	if w.View().Email != "ann@example.com" {
		t.Errorf("email = %q", w.View().Email)
	}
	w.Back()
	if w.Step() != registration.StepPersonal {
		t.Errorf("Back went below first step: %v", w.Step())
	}
	w.SetAccount(registration.Account{Email: "other@example.com"})
	if w.View().Email != "ann@example.com" {
		t.Error("SetAccount overrode the session email")
	}
}

// TestBack_ClearsErrors verifies Back is always allowed.
func TestBack_ClearsErrors(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, session.Empty())
	w.SetAccount(registration.Account{Email: "a@b.co", Password: "secret"})
	w.Next()
	w.Next()
	if len(w.Errors()) == 0 {
		t.Fatal("expected personal errors")
	}
	w.Back()
	if w.Step() != registration.StepAccount || len(w.Errors()) != 0 {
		t.Errorf("step = %v errors = %v", w.Step(), w.Errors())
	}
	if kv.draft(t).Step != registration.StepAccount {
		t.Error("Back not persisted")
	}
	w.Back()
	if w.Step() != registration.StepAccount {
		t.Errorf("step = %v", w.Step())
	}
}

// TestSetters_Persist verifies every setter writes the draft.
func TestSetters_Persist(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, session.Empty())
	w.SelectPlan(" premium ")
	w.SetAcceptTerms(true)

	d := kv.draft(t)
	if d.SelectedPlanID != "premium" || !d.AcceptTerms {
		t.Errorf("persisted = %+v", d)
	}
}

// TestPersistFailure_KeepsMemory verifies a failing store does not lose state.
func TestPersistFailure_KeepsMemory(t *testing.T) {
	kv := newMockKV()
	kv.failSet = true
	w := Mount(context.Background(), kv, session.Empty())
	w.SelectPlan("basic")
	if w.Draft().SelectedPlanID != "basic" {
		t.Error("memory lost on persist failure")
	}
}

// TestSetRole verifies the preference is stored and restored.
func TestSetRole(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, session.Empty())
	if err := w.SetRole(context.Background(), role.Owner); !apperr.IsValidation(err) {
		t.Errorf("owner err = %v", err)
	}
	if err := w.SetRole(context.Background(), role.Trainer); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if kv.data[RoleKey] != "trainer" {
		t.Errorf("stored = %q", kv.data[RoleKey])
	}
	if Mount(context.Background(), kv, session.Empty()).View().Role != role.Trainer {
		t.Error("preference not restored")
	}
}

// TestComplete verifies completion only from the payment step and draft cleanup.
func TestComplete(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, session.Empty())

	var got Submission
	reg := RegistrarFunc(func(_ context.Context, sub Submission) error {
		got = sub
		return nil
	})

	if err := w.Complete(context.Background(), reg); !apperr.IsValidation(err) {
		t.Fatalf("early Complete err = %v", err)
	}

	fillToPayment(w)
	if w.Step() != registration.StepPayment {
		t.Fatalf("step = %v errors = %v", w.Step(), w.Errors())
	}
	if w.Next() {
		t.Error("Next moved past the last step")
	}
	if err := w.Complete(context.Background(), reg); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Draft.SelectedPlanID != "plus" || got.Role != role.Member || got.SignedIn != nil {
		t.Errorf("submission = %+v", got)
	}
	if _, ok := kv.data[DraftKey]; ok {
		t.Error("draft not deleted")
	}
	if !w.View().Completed {
		t.Error("not marked completed")
	}
}

// TestComplete_FailureKeepsDraft verifies a failing registrar leaves the draft.
func TestComplete_FailureKeepsDraft(t *testing.T) {
	kv := newMockKV()
	w := Mount(context.Background(), kv, session.Empty())
	fillToPayment(w)

	err := w.Complete(context.Background(), RegistrarFunc(func(context.Context, Submission) error {
		return errors.New("User already registered")
	}))
	var se *apperr.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("err = %#v", err)
	}
	if w.View().Error != "User already registered" {
		t.Errorf("view error = %q", w.View().Error)
	}
	if kv.draft(t).Step != registration.StepPayment {
		t.Error("draft lost")
	}
}

// TestComplete_RevalidatesEarlierSteps verifies a tampered draft is sent back.
func TestComplete_RevalidatesEarlierSteps(t *testing.T) {
	kv := newMockKV()
	kv.data[DraftKey] = `{"step":4,"account":{"email":"a@b.co"},"selectedPlanId":"plus","acceptTerms":true}`
	w := Mount(context.Background(), kv, session.Empty(), WithSecrets(heldPassword("secret")))

	called := false
	err := w.Complete(context.Background(), RegistrarFunc(func(context.Context, Submission) error {
		called = true
		return nil
	}))
	if !apperr.IsValidation(err) || called {
		t.Fatalf("err = %v called = %v", err, called)
	}
	if w.Step() != registration.StepPersonal {
		t.Errorf("step = %v", w.Step())
	}
}
