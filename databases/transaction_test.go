package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/police-blotter-api/databases"
	"github.com/linesmerrill/police-blotter-api/databases/mocks"
)

// fakeSession runs the callback once and reports whether it would commit
type fakeSession struct {
	mongo.Session
	committed bool
	aborted   bool
	ended     bool
}

func (s *fakeSession) WithTransaction(ctx context.Context, fn func(mongo.SessionContext) (interface{}, error), _ ...*options.TransactionOptions) (interface{}, error) {
	res, err := fn(mongo.NewSessionContext(ctx, s))
	if err != nil {
		s.aborted = true
		return nil, err
	}
	s.committed = true
	return res, nil
}

func (s *fakeSession) EndSession(context.Context) {
	s.ended = true
}

func TestTransactor_Commits(t *testing.T) {
	session := &fakeSession{}
	client := &mocks.ClientHelper{}
	client.On("StartSession").Return(session, nil)

	var sawSession bool
	err := databases.NewTransactor(client).WithTransaction(context.Background(), func(ctx context.Context) error {
		_, sawSession = ctx.(mongo.SessionContext)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, sawSession)
	assert.True(t, session.committed)
	assert.True(t, session.ended)
}

func TestTransactor_AbortsOnError(t *testing.T) {
	session := &fakeSession{}
	client := &mocks.ClientHelper{}
	client.On("StartSession").Return(session, nil)
	boom := errors.New("write failed")

	err := databases.NewTransactor(client).WithTransaction(context.Background(), func(context.Context) error {
		return boom
	})

	assert.True(t, errors.Is(err, boom))
	assert.True(t, session.aborted)
	assert.False(t, session.committed)
	assert.True(t, session.ended)
}

func TestTransactor_StartSessionError(t *testing.T) {
	client := &mocks.ClientHelper{}
	client.On("StartSession").Return(nil, errors.New("mocked-error"))

	called := false
	err := databases.NewTransactor(client).WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.EqualError(t, err, "failed to start session: mocked-error")
	assert.False(t, called)
}
