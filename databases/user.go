package databases

// go generate: mockery --name UserDatabase

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/linesmerrill/police-blotter-api/models"
)

const userName = "users"

// UserDatabase contains the methods to use with the user database
type UserDatabase interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
}

type userDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) UserDatabase {
	return &userDatabase{
		db: db,
	}
}

func (u *userDatabase) FindByEmail(ctx context.Context, email string) (models.User, error) {
	user := models.User{}
	err := u.db.Collection(userName).FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&user)
	if err != nil {
		return models.User{}, translate(err, "user "+email)
	}
	return user, nil
}

func (u *userDatabase) Get(ctx context.Context, id string) (models.User, error) {
	user := models.User{}
	err := u.db.Collection(userName).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		return models.User{}, translate(err, "user "+id)
	}
	return user, nil
}
