package databases

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs work inside a multi-document transaction. Store calls made
// with the ctx handed to fn join the transaction; the deployment must be a
// replica set, which the notification change streams already require.
type Transactor struct {
	Client ClientHelper
}

// NewTransactor returns a Transactor starting sessions on client
func NewTransactor(client ClientHelper) *Transactor {
	return &Transactor{Client: client}
}

// WithTransaction commits every write fn makes, or none of them when fn
// returns an error. Transient transaction errors are retried by the driver.
func (t *Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.Client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
