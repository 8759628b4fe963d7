package account

import (
	"context"
)

// UserRepository reads and writes the User collection. Lookups that match
// nothing return docstore.ErrNotFound.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmailAndType(ctx context.Context, email, userType string) (*User, error)
	Create(ctx context.Context, u *User) (string, error)
	UpdatePassword(ctx context.Context, email, userType, password string) (int64, error)
}
