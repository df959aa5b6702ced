package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gymdesk/internal/domain/account"
	"gymdesk/internal/domain/member"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/trainer"
)

// TestAccountSeedDeps holds the stores needed for test account seeding.
type TestAccountSeedDeps struct {
	Accounts testAcctAccountStore
	Members  MemberCreator
	Trainers TrainerCreator
}

type testAcctAccountStore interface {
	Save(ctx context.Context, a account.Account) error
	GetByEmail(ctx context.Context, email string) (account.Account, error)
}

// testAccountDef defines a single test account to seed.
type testAccountDef struct {
	Email    string
	Password string
	Role     role.Role
	Name     string
}

// TestAccountPassword is the password every seeded development account shares.
const TestAccountPassword = "gymdesk-dev"

// testAccounts returns the list of test accounts to seed.
func testAccounts() []testAccountDef {
	return []testAccountDef{
		{Email: "owner@gymdesk.local", Password: TestAccountPassword, Role: role.Owner, Name: "Test Owner"},
		{Email: "trainer@gymdesk.local", Password: TestAccountPassword, Role: role.Trainer, Name: "Test Trainer"},
		{Email: "member@gymdesk.local", Password: TestAccountPassword, Role: role.Member, Name: "Test Member"},
	}
}

// ExecuteSeedTestAccounts creates one local account per role if it doesn't already exist.
// It is idempotent: accounts are matched by email.
// PRE: the database schema exists; local backend only
// POST: three accounts exist with app-level roles; the trainer and member have profile records
func ExecuteSeedTestAccounts(ctx context.Context, deps TestAccountSeedDeps) error {
	created := 0
	for _, def := range testAccounts() {
		if _, err := deps.Accounts.GetByEmail(ctx, def.Email); err == nil {
			continue // already exists
		}

		acct := account.Account{
			ID:           uuid.New().String(),
			Email:        def.Email,
			AppMetadata:  map[string]any{role.MetadataKey: string(def.Role)},
			UserMetadata: map[string]any{"full_name": def.Name},
			CreatedAt:    time.Now().UTC(),
		}
		if err := acct.SetPassword(def.Password); err != nil {
			return fmt.Errorf("seed test account %s: set password: %w", def.Email, err)
		}
		if err := deps.Accounts.Save(ctx, acct); err != nil {
			return fmt.Errorf("seed test account %s: save: %w", def.Email, err)
		}

		switch def.Role {
		case role.Trainer:
			if _, err := deps.Trainers.Create(ctx, trainer.Trainer{
				AccountID: acct.ID,
				Name:      def.Name,
				Email:     def.Email,
				Status:    trainer.StatusActive,
			}); err != nil {
				return fmt.Errorf("seed test trainer %s: %w", def.Name, err)
			}
		case role.Member:
			if _, err := deps.Members.Create(ctx, member.Member{
				AccountID: acct.ID,
				Name:      def.Name,
				Email:     def.Email,
				PlanID:    "basic",
				Status:    member.StatusActive,
			}); err != nil {
				return fmt.Errorf("seed test member %s: %w", def.Name, err)
			}
		}

		created++
		slog.Info("seed_event", "event", "test_account_created", "email", def.Email, "role", string(def.Role))
	}

	if created > 0 {
		slog.Info("seed_event", "event", "test_accounts_seeded", "created", created)
	}
	return nil
}
