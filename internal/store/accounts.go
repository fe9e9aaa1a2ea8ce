package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qrattend/internal/model"
)

// CreateAccount stores a local sign-in credential. Emails are unique
// case-insensitively.
func (r *Repository) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO accounts (uid, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`), a.UID, strings.ToLower(a.Email), a.PasswordHash, string(a.Role), a.CreatedAt.UTC())
	return wrapWriteErr(err)
}

// AccountByEmail looks up a local account for sign-in.
func (r *Repository) AccountByEmail(ctx context.Context, email string) (model.Account, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`
		SELECT uid, email, password_hash, role, created_at FROM accounts WHERE email = $1
	`), strings.ToLower(email))
	var (
		a    model.Account
		role string
	)
	err := row.Scan(&a.UID, &a.Email, &a.PasswordHash, &role, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account %s: %w", email, model.ErrNotFound)
	}
	if err != nil {
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}
