package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

// UserDirectory reads actors from the users table, which is provisioned by
// the identity service.
type UserDirectory struct {
	db *sql.DB
}

func NewUserDirectory(db *sql.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, email, full_name FROM users WHERE id = $1`, id)
	return scanUser(row, "get user")
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := d.db.QueryRowContext(ctx, `
SELECT id, email, full_name
FROM users
WHERE lower(email) = lower($1)
`, strings.TrimSpace(email))
	return scanUser(row, "find user by email")
}

func scanUser(row *sql.Row, op string) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.FullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.ErrNotFound, op, "user not found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}
