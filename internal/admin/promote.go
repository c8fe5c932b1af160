package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lingoreel/lingoreel/internal/database"
)

var ErrUserNotFound = errors.New("user not found")

// Promote makes the profile registered under email an approved admin. It is
// used to bootstrap the first admin from the command line.
func Promote(ctx context.Context, db database.DBTX, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	tag, err := db.Exec(ctx,
		`UPDATE profiles SET role = 'admin', status = 'approved', approved_at = COALESCE(approved_at, now())
		 WHERE lower(email) = lower($1)`, email,
	)
	if err != nil {
		return fmt.Errorf("promote %s: %w", email, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
