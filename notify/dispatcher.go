// Package notify delivers inbox notifications and tracks their delivered/seen flags.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

// Store is the persistence port for recipient inboxes
type Store interface {
	Insert(ctx context.Context, n models.InboxNotification) error
	List(ctx context.Context, recipientID string, limit int64) ([]models.InboxNotification, error)
	MarkDelivered(ctx context.Context, recipientID, id string) error
	MarkSeen(ctx context.Context, recipientID, id string) error
	Watch(ctx context.Context, recipientID string) (<-chan models.InboxNotification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Relay hands a durably queued notification to a push transport
type Relay interface {
	Push(ctx context.Context, n models.InboxNotification) error
}

// Failure is one recipient that SendBatch could not queue for
type Failure struct {
	RecipientID string `json:"recipientId"`
	Err         error  `json:"-"`
	Error       string `json:"error"`
}

// Dispatcher creates inbox notifications
type Dispatcher struct {
	Store  Store
	Relay  Relay
	Now    func() time.Time
	NewID  func() string
	Logger *zap.SugaredLogger
}

// NewDispatcher returns a Dispatcher writing to store. relay may be nil.
func NewDispatcher(store Store, relay Relay) *Dispatcher {
	return &Dispatcher{Store: store, Relay: relay}
}

// Send queues one notification in the recipient's inbox. Success means the
// notification is durable, not that the recipient has seen it.
func (d *Dispatcher) Send(ctx context.Context, recipientID, title, body string, data map[string]interface{}) (string, error) {
	if recipientID == "" {
		return "", fmt.Errorf("%w: recipient", models.ErrMissingRequiredField)
	}
	n := models.InboxNotification{
		ID:          d.newID(),
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Data:        data,
		CreatedAt:   d.now(),
	}
	if err := d.Store.Insert(ctx, n); err != nil {
		return "", fmt.Errorf("%w: notify %s: %v", models.ErrEffectFailure, recipientID, err)
	}

	if d.Relay != nil {
		if err := d.Relay.Push(ctx, n); err != nil {
			// the inbox row is the source of truth, listeners still pick it up
			d.logger().Warnw("failed to relay notification",
				"notificationId", n.ID,
				"recipientId", recipientID,
				"error", err)
		}
	}
	return n.ID, nil
}

// SendBatch applies Send to every recipient independently
func (d *Dispatcher) SendBatch(ctx context.Context, recipientIDs []string, title, body string, data map[string]interface{}) ([]string, []Failure) {
	var delivered []string
	var failed []Failure
	for _, id := range recipientIDs {
		nID, err := d.Send(ctx, id, title, body, data)
		if err != nil {
			failed = append(failed, Failure{RecipientID: id, Err: err, Error: err.Error()})
			continue
		}
		delivered = append(delivered, nID)
	}
	return delivered, failed
}

// Inbox lists a recipient's notifications in creation order
func (d *Dispatcher) Inbox(ctx context.Context, recipientID string, limit int64) ([]models.InboxNotification, error) {
	return d.Store.List(ctx, recipientID, limit)
}

// MarkDelivered flips delivered once the recipient's listener has received it
func (d *Dispatcher) MarkDelivered(ctx context.Context, recipientID, id string) error {
	return d.Store.MarkDelivered(ctx, recipientID, id)
}

// MarkSeen flips seen on explicit acknowledgement
func (d *Dispatcher) MarkSeen(ctx context.Context, recipientID, id string) error {
	return d.Store.MarkSeen(ctx, recipientID, id)
}

// Subscribe streams notifications inserted into the recipient's inbox until ctx ends
func (d *Dispatcher) Subscribe(ctx context.Context, recipientID string) (<-chan models.InboxNotification, error) {
	return d.Store.Watch(ctx, recipientID)
}

// Sweep removes notifications older than the retention window
func (d *Dispatcher) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return d.Store.DeleteOlderThan(ctx, d.now().Add(-retention))
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// ObjectIDs sort in creation order, which keeps per-recipient inbox ordering
func (d *Dispatcher) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return primitive.NewObjectID().Hex()
}

func (d *Dispatcher) logger() *zap.SugaredLogger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.S()
}
