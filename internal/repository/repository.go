// Package repository declares the credential store contract. Implementations
// live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/account-service/internal/model"
)

type ListOptions struct {
	Limit  int // 0 means no limit
	Offset int
}

// UserRepository stores activated accounts.
//
// Create must enforce email uniqueness itself and report a violation as
// apperror.ErrConflict; it is the authoritative uniqueness check. Lookups,
// updates and deletes of a missing record return apperror.ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	UpdateProfile(ctx context.Context, id, username, avatar string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id string, role model.Role) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
