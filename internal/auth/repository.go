package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/EmpoweredVote/EV-Dashboard/internal/workspace"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// WorkspaceSpec names the workspace provisioned alongside a new user.
type WorkspaceSpec struct {
	Owner string
	Name  string
}

// Repository is the relational user store.
//
// Lookups return ErrNotFound when nothing matches. Create returns ErrConflict
// when the username or email is taken and ErrPersistence for anything else;
// either way nothing it started is left committed.
type Repository interface {
	FindByID(ctx context.Context, userID string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByUsernameOrEmail matches on username, or on email when email is non-empty.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)
	Create(ctx context.Context, user *User, ws WorkspaceSpec) error
	// UpdatePassword stores hash and clears MustChangePassword.
	UpdatePassword(ctx context.Context, userID, hash string) error
}

var emailFolder = cases.Fold()

// NormalizeEmail trims and case-folds an address so uniqueness ignores case.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// persistenceError logs cause and returns a generic error safe to surface.
func persistenceError(op string, cause error) error {
	log.Error().Err(cause).Str("op", op).Msg("user store failure")
	return fmt.Errorf("%s: %w", op, ErrPersistence)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(d *gorm.DB) *GormRepository {
	return &GormRepository{db: d}
}

func (r *GormRepository) first(ctx context.Context, op string, query *gorm.DB) (*User, error) {
	var user User
	err := query.WithContext(ctx).First(&user).Error
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError(op, err)
	}
	return &user, nil
}

func (r *GormRepository) FindByID(ctx context.Context, userID string) (*User, error) {
	return r.first(ctx, "find user by id", r.db.Where("user_id = ?", userID))
}

func (r *GormRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.first(ctx, "find user by username", r.db.Where("username = ?", username))
}

func (r *GormRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error) {
	q := r.db.Where("username = ?", username)
	if email != "" {
		q = q.Or("email = ?", email)
	}
	return r.first(ctx, "find user by username or email", q)
}

func (r *GormRepository) Create(ctx context.Context, user *User, ws WorkspaceSpec) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := workspace.GetOrCreate(tx, ws.Owner, ws.Name)
		if err != nil {
			return err
		}

		user.WorkspaceID = w.ID
		if user.UserID == "" {
			user.UserID = uuid.NewString()
		}
		return tx.Create(user).Error
	})
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("create user %q: %w", user.Username, ErrConflict)
	}
	if err != nil {
		return persistenceError("create user", err)
	}
	return nil
}

func (r *GormRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	res := r.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"password_hash":        hash,
			"must_change_password": false,
		})
	if res.Error != nil {
		return persistenceError("update password", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
