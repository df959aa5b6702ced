package account

import (
	"context"

	domain "gymdesk/internal/domain/account"
)

// Store persists local identity accounts and their reset tokens.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	Save(ctx context.Context, value domain.Account) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	SaveResetToken(ctx context.Context, token domain.ResetToken) error
	GetResetToken(ctx context.Context, token string) (domain.ResetToken, error)
	InvalidateResetTokens(ctx context.Context, accountID string) error
}
