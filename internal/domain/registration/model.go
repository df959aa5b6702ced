package registration

import (
	"regexp"
	"strings"
)

// Step is a position in the sign-up flow.
type Step int

// Steps in order.
const (
	StepAccount Step = iota
	StepPersonal
	StepPlan
	StepReview
	StepPayment
)

// LastStep is the step at which registration can be completed.
const LastStep = StepPayment

// MinPasswordLength is the shortest password the account step accepts.
const MinPasswordLength = 6

// Field keys used in step error maps.
const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldPhone       = "phone"
	FieldPlan        = "selectedPlanId"
	FieldAcceptTerms = "acceptTerms"
)

var stepNames = [...]string{"account", "personal", "plan", "review", "payment"}

func (s Step) String() string {
	if s < StepAccount || s > StepPayment {
		return "unknown"
	}
	return stepNames[s]
}

// IsValid reports whether s is one of the defined steps.
func (s Step) IsValid() bool {
	return s >= StepAccount && s <= StepPayment
}

// emailPattern is a basic shape check, not RFC 5322.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CheckEmail returns the message for a missing or malformed address, or "".
func CheckEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "Email is required"
	}
	if !emailPattern.MatchString(email) {
		return "Enter a valid email address"
	}
	return ""
}

// Account holds the credentials entered on the first step.
type Account struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// Personal holds contact details.
type Personal struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// Draft is the persisted in-progress registration.
type Draft struct {
	Step           Step     `json:"step"`
	Account        Account  `json:"account"`
	Personal       Personal `json:"personal"`
	SelectedPlanID string   `json:"selectedPlanId"`
	AcceptTerms    bool     `json:"acceptTerms"`
}

// FullName joins first and last name.
func (p Personal) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// ValidateStep checks the fields owned by step.
// PRE: none
// POST: returns an empty map when the step passes; otherwise field -> message
func (d Draft) ValidateStep(step Step) map[string]string {
	errs := map[string]string{}
	switch step {
	case StepAccount:
		if msg := CheckEmail(d.Account.Email); msg != "" {
			errs[FieldEmail] = msg
		}
		if len(d.Account.Password) < MinPasswordLength {
			errs[FieldPassword] = "Password must be at least 6 characters"
		}
	case StepPersonal:
		if strings.TrimSpace(d.Personal.FirstName) == "" {
			errs[FieldFirstName] = "First name is required"
		}
		if strings.TrimSpace(d.Personal.LastName) == "" {
			errs[FieldLastName] = "Last name is required"
		}
		if strings.TrimSpace(d.Personal.Phone) == "" {
			errs[FieldPhone] = "Phone is required"
		}
	case StepPlan:
		if strings.TrimSpace(d.SelectedPlanID) == "" {
			errs[FieldPlan] = "Select a plan"
		}
	case StepReview:
		if !d.AcceptTerms {
			errs[FieldAcceptTerms] = "You must accept the terms"
		}
	}
	return errs
}

// Plan is a membership tier offered at sign-up.
type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MonthlyPrice int64  `json:"monthlyPrice"` // cents
}

// Plans is the catalogue offered on the plan step.
var Plans = []Plan{
	{ID: "basic", Name: "Basic", MonthlyPrice: 2900},
	{ID: "plus", Name: "Plus", MonthlyPrice: 4900},
	{ID: "premium", Name: "Premium", MonthlyPrice: 7900},
}

// FindPlan looks up a plan by id.
func FindPlan(id string) (Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
