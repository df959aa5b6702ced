package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gymdesk/internal/adapters/storage"
	domain "gymdesk/internal/domain/account"
)

const accountColumns = "id, email, password_hash, app_metadata, user_metadata, created_at, failed_logins, locked_until"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new AccountStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows if not found
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM account WHERE id = ?", id)
	entity, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account not found: %w", err)
	}
	return entity, err
}

// GetByEmail retrieves an Account by email, ignoring case.
// PRE: email is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows if not found
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM account WHERE email = ?", strings.TrimSpace(email))
	entity, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account not found: %w", err)
	}
	return entity, err
}

// Save persists an Account to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, entity domain.Account) error {
	appMeta, err := encodeMetadata(entity.AppMetadata)
	if err != nil {
		return fmt.Errorf("encode app metadata: %w", err)
	}
	userMeta, err := encodeMetadata(entity.UserMetadata)
	if err != nil {
		return fmt.Errorf("encode user metadata: %w", err)
	}

	var lockedUntil any
	if !entity.LockedUntil.IsZero() {
		lockedUntil = entity.LockedUntil.UTC().Format(storage.TimeLayout)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO account (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email=excluded.email,
			password_hash=excluded.password_hash,
			app_metadata=excluded.app_metadata,
			user_metadata=excluded.user_metadata,
			failed_logins=excluded.failed_logins,
			locked_until=excluded.locked_until`,
		entity.ID,
		strings.TrimSpace(entity.Email),
		entity.PasswordHash,
		appMeta,
		userMeta,
		entity.CreatedAt.UTC().Format(storage.TimeLayout),
		entity.FailedLogins,
		lockedUntil,
	)
	return err
}

// Delete removes an Account and, by cascade, its reset tokens.
// PRE: id is non-empty
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM account WHERE id = ?", id)
	return err
}

// Count returns the total number of accounts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM account").Scan(&count)
	return count, err
}

// SaveResetToken persists a password reset token.
// PRE: token.AccountID references an existing account
func (s *SQLiteStore) SaveResetToken(ctx context.Context, token domain.ResetToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reset_token (id, account_id, token, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET used=excluded.used`,
		token.ID,
		token.AccountID,
		token.Token,
		token.ExpiresAt.UTC().Format(storage.TimeLayout),
		token.Used,
		token.CreatedAt.UTC().Format(storage.TimeLayout),
	)
	return err
}

// GetResetToken looks a reset token up by its secret value.
// POST: Returns the token or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetResetToken(ctx context.Context, token string) (domain.ResetToken, error) {
	var t domain.ResetToken
	var expiresAt, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, account_id, token, expires_at, used, created_at FROM reset_token WHERE token = ?", token,
	).Scan(&t.ID, &t.AccountID, &t.Token, &expiresAt, &t.Used, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResetToken{}, fmt.Errorf("reset token not found: %w", err)
	}
	if err != nil {
		return domain.ResetToken{}, err
	}
	t.ExpiresAt, _ = parseTime(expiresAt)
	t.CreatedAt, _ = parseTime(createdAt)
	return t, nil
}

// InvalidateResetTokens marks every outstanding token of an account as used.
// POST: no token of accountID passes ResetToken.Check
func (s *SQLiteStore) InvalidateResetTokens(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE reset_token SET used = 1 WHERE account_id = ? AND used = 0", accountID)
	return err
}

// scanAccount extracts an Account from a row scanner function.
func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var appMeta, userMeta, createdAt string
	var lockedUntil sql.NullString
	err := scan(
		&entity.ID,
		&entity.Email,
		&entity.PasswordHash,
		&appMeta,
		&userMeta,
		&createdAt,
		&entity.FailedLogins,
		&lockedUntil,
	)
	if err != nil {
		return domain.Account{}, err
	}
	if entity.AppMetadata, err = decodeMetadata(appMeta); err != nil {
		return domain.Account{}, fmt.Errorf("decode app metadata: %w", err)
	}
	if entity.UserMetadata, err = decodeMetadata(userMeta); err != nil {
		return domain.Account{}, fmt.Errorf("decode user metadata: %w", err)
	}
	entity.CreatedAt, _ = parseTime(createdAt)
	if lockedUntil.Valid && lockedUntil.String != "" {
		entity.LockedUntil, _ = parseTime(lockedUntil.String)
	}
	return entity, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMetadata(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time: %s", s)
}
