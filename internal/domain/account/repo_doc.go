package account

import (
	"context"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
)

type userRepoDoc struct{ coll docstore.Collection }

func NewUserRepoDoc(store docstore.Store) UserRepository {
	return &userRepoDoc{coll: store.Collection(docstore.Users)}
}

func (r *userRepoDoc) findOne(ctx context.Context, f docstore.Filter) (*User, error) {
	doc, err := r.coll.FindOne(ctx, f)
	if err != nil {
		return nil, err
	}
	var u User
	if err := doc.Decode(&u); err != nil {
		return nil, apperr.Inconsistent("user record %s: %v", doc.ID, err)
	}
	return &u, nil
}

func (r *userRepoDoc) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, docstore.Eq("email", email))
}

func (r *userRepoDoc) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, docstore.Eq("username", username))
}

func (r *userRepoDoc) GetByEmailAndType(ctx context.Context, email, userType string) (*User, error) {
	return r.findOne(ctx, docstore.And(docstore.Eq("email", email), docstore.Eq("type", userType)))
}

func (r *userRepoDoc) Create(ctx context.Context, u *User) (string, error) {
	return r.coll.InsertOne(ctx, u)
}

func (r *userRepoDoc) UpdatePassword(ctx context.Context, email, userType, password string) (int64, error) {
	return r.coll.UpdateOne(ctx,
		docstore.And(docstore.Eq("email", email), docstore.Eq("type", userType)),
		docstore.Set("password", password),
	)
}
