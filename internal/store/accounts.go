package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const accountCols = `id, email, api_key, plan_name, credits_used, credits_total,
	last_seat_count, team_owner, disabled, subscription_end, note,
	token_expires_at, access_token_enc != '', created_at, updated_at`

// sqlTimeFormat keeps a fixed-width fraction so TEXT comparisons stay
// chronological.
const sqlTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CreateAccount registers a new account, encrypting the password and any
// initial tokens. The email must be unique.
func (s *Store) CreateAccount(p CreateAccountParams) (*Account, error) {
	email := strings.TrimSpace(p.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewInvalidError(fmt.Sprintf("invalid email %q", p.Email))
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	} else {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, NewInvalidError(fmt.Sprintf("invalid account id %q", p.ID))
		}
		id = parsed.String()
	}

	passwordEnc, err := s.vault.Encrypt(p.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}
	accessEnc, err := s.vault.Encrypt(p.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc, err := s.vault.Encrypt(p.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := time.Now().UTC().Format(sqlTimeFormat)
	_, err = s.db.Write.Exec(`
		INSERT INTO accounts (id, email, password_enc, access_token_enc, refresh_token_enc,
			token_expires_at, api_key, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, email, passwordEnc, accessEnc, refreshEnc,
		nullableTime(p.ExpiresAt), p.APIKey, p.Note, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, NewConflictError(fmt.Sprintf("account with email %q already exists", email))
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return s.GetAccount(id)
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(id string) (*Account, error) {
	row := s.db.Read.QueryRow("SELECT "+accountCols+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccountByEmail returns one account by email (case-insensitive).
func (s *Store) GetAccountByEmail(email string) (*Account, error) {
	row := s.db.Read.QueryRow("SELECT "+accountCols+" FROM accounts WHERE email = ?", strings.TrimSpace(email))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError(fmt.Sprintf("account with email %q not found", email))
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

// ListAccounts returns accounts matching the filter, oldest first.
func (s *Store) ListAccounts(f ListAccountsFilter) ([]*Account, error) {
	query := "SELECT " + accountCols + " FROM accounts"
	var conds []string
	var args []any

	if f.Search != "" {
		conds = append(conds, "(email LIKE ? OR note LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat)
	}
	if f.Disabled != nil {
		conds = append(conds, "disabled = ?")
		args = append(args, boolToInt(*f.Disabled))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.Read.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccount applies the non-nil fields and returns the updated row.
func (s *Store) UpdateAccount(id string, p UpdateAccountParams) (*Account, error) {
	var sets []string
	var args []any

	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, NewInvalidError(fmt.Sprintf("invalid email %q", *p.Email))
		}
		sets = append(sets, "email = ?")
		args = append(args, email)
	}
	if p.Password != nil {
		enc, err := s.vault.Encrypt(*p.Password)
		if err != nil {
			return nil, fmt.Errorf("encrypt password: %w", err)
		}
		sets = append(sets, "password_enc = ?")
		args = append(args, enc)
	}
	if p.APIKey != nil {
		sets = append(sets, "api_key = ?")
		args = append(args, *p.APIKey)
	}
	if p.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *p.Note)
	}
	if p.Disabled != nil {
		sets = append(sets, "disabled = ?")
		args = append(args, boolToInt(*p.Disabled))
	}
	if len(sets) == 0 {
		return s.GetAccount(id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(sqlTimeFormat), id)

	res, err := s.db.Write.Exec("UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, NewConflictError("another account already uses that email")
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}

	return s.GetAccount(id)
}

// UpdateTokens stores a fresh token bundle for the account. Both durable and
// caller-held state must change together, so callers update their in-memory
// copy from the same TokenState on success.
func (s *Store) UpdateTokens(id string, t TokenState) error {
	accessEnc, err := s.vault.Encrypt(t.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc, err := s.vault.Encrypt(t.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	var expires any
	if !t.ExpiresAt.IsZero() {
		expires = t.ExpiresAt.UTC().Format(sqlTimeFormat)
	}

	res, err := s.db.Write.Exec(`
		UPDATE accounts
		SET access_token_enc = ?, refresh_token_enc = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		accessEnc, refreshEnc, expires, time.Now().UTC().Format(sqlTimeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	return nil
}

// Token returns the decrypted token bundle for the account.
func (s *Store) Token(id string) (TokenState, error) {
	var accessEnc, refreshEnc string
	var expires sql.NullString
	err := s.db.Read.QueryRow(
		"SELECT access_token_enc, refresh_token_enc, token_expires_at FROM accounts WHERE id = ?", id,
	).Scan(&accessEnc, &refreshEnc, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenState{}, NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	if err != nil {
		return TokenState{}, fmt.Errorf("get tokens: %w", err)
	}

	var t TokenState
	if t.AccessToken, err = s.vault.Decrypt(accessEnc); err != nil {
		return TokenState{}, fmt.Errorf("decrypt access token: %w", err)
	}
	if t.RefreshToken, err = s.vault.Decrypt(refreshEnc); err != nil {
		return TokenState{}, fmt.Errorf("decrypt refresh token: %w", err)
	}
	if expires.Valid {
		if ts, ok := parseTime(expires.String); ok {
			t.ExpiresAt = ts
		}
	}
	return t, nil
}

// Password returns the decrypted account password.
func (s *Store) Password(id string) (string, error) {
	var enc string
	err := s.db.Read.QueryRow("SELECT password_enc FROM accounts WHERE id = ?", id).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	if err != nil {
		return "", fmt.Errorf("get password: %w", err)
	}
	pw, err := s.vault.Decrypt(enc)
	if err != nil {
		return "", fmt.Errorf("decrypt password: %w", err)
	}
	return pw, nil
}

// UpdateMirror stores the profile fields reported by the upstream.
func (s *Store) UpdateMirror(id string, m MirrorParams) error {
	sets := []string{
		"plan_name = ?", "credits_used = ?", "credits_total = ?",
		"team_owner = ?", "subscription_end = ?", "updated_at = ?",
	}
	args := []any{
		m.PlanName, m.CreditsUsed, m.CreditsTotal, boolToInt(m.TeamOwner),
		nullableTime(m.SubscriptionEnd), time.Now().UTC().Format(sqlTimeFormat),
	}
	if m.APIKey != nil {
		sets = append(sets, "api_key = ?")
		args = append(args, *m.APIKey)
	}
	if m.Disabled != nil {
		sets = append(sets, "disabled = ?")
		args = append(args, boolToInt(*m.Disabled))
	}
	args = append(args, id)

	res, err := s.db.Write.Exec(
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...,
	)
	if err != nil {
		return fmt.Errorf("update mirror: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	return nil
}

// SetLastSeatCount records the seat count applied by the latest rotation.
func (s *Store) SetLastSeatCount(id string, seats int) error {
	res, err := s.db.Write.Exec(
		"UPDATE accounts SET last_seat_count = ?, updated_at = ? WHERE id = ?",
		seats, time.Now().UTC().Format(sqlTimeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("set last seat count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	return nil
}

// DeleteAccount removes the account row.
func (s *Store) DeleteAccount(id string) error {
	res, err := s.db.Write.Exec("DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(fmt.Sprintf("account %s not found", id))
	}
	return nil
}

// CountAccounts returns total and disabled account counts.
func (s *Store) CountAccounts() (total, disabled int, err error) {
	err = s.db.Read.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(disabled), 0) FROM accounts",
	).Scan(&total, &disabled)
	if err != nil {
		return 0, 0, fmt.Errorf("count accounts: %w", err)
	}
	return total, disabled, nil
}

// ExpiringTokenIDs returns ids of enabled accounts whose token expires
// within the window. Accounts without a known expiry are not returned.
func (s *Store) ExpiringTokenIDs(window time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(window).Format(sqlTimeFormat)
	rows, err := s.db.Read.Query(`
		SELECT id FROM accounts
		WHERE disabled = 0 AND token_expires_at IS NOT NULL AND token_expires_at <= ?
		ORDER BY token_expires_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring tokens: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	var subEnd, tokenExp sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&a.ID, &a.Email, &a.APIKey, &a.PlanName, &a.CreditsUsed, &a.CreditsTotal,
		&a.LastSeatCount, &a.TeamOwner, &a.Disabled, &subEnd, &a.Note,
		&tokenExp, &a.HasToken, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if subEnd.Valid {
		if t, ok := parseTime(subEnd.String); ok {
			a.SubscriptionEnd = &t
		}
	}
	if tokenExp.Valid {
		if t, ok := parseTime(tokenExp.String); ok {
			a.TokenExpiresAt = &t
		}
	}
	if t, ok := parseTime(createdAt); ok {
		a.CreatedAt = t
	}
	if t, ok := parseTime(updatedAt); ok {
		a.UpdatedAt = t
	}
	return &a, nil
}

func parseTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqlTimeFormat)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
