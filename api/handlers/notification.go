package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/api"
	"github.com/linesmerrill/police-blotter-api/config"
	"github.com/linesmerrill/police-blotter-api/models"
)

const (
	inboxPageSize = 50
	backlogSize   = 100
	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
	pongWait      = 60 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the ticket authenticates the caller, not the origin
		return true
	},
}

// Inbox is the recipient-facing notification surface
type Inbox interface {
	Inbox(ctx context.Context, recipientID string, limit int64) ([]models.InboxNotification, error)
	MarkDelivered(ctx context.Context, recipientID, id string) error
	MarkSeen(ctx context.Context, recipientID, id string) error
	Subscribe(ctx context.Context, recipientID string) (<-chan models.InboxNotification, error)
}

// Notification exported for testing purposes
type Notification struct {
	Inbox   Inbox
	Tickets *api.Tickets
}

// socketMessage is the envelope sent to and received from listeners
type socketMessage struct {
	Type string                    `json:"type"`
	ID   string                    `json:"id,omitempty"`
	Data *models.InboxNotification `json:"data,omitempty"`
}

// NotificationsHandler returns the caller's inbox in creation order
func (n Notification) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	list, err := n.Inbox.Inbox(ctx, actor.ID, queryLimit(r, inboxPageSize))
	if err != nil {
		writeError(w, "failed to get notifications", err)
		return
	}
	if len(list) == 0 {
		list = []models.InboxNotification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkDeliveredHandler flags a notification as delivered to the caller
func (n Notification) MarkDeliveredHandler(w http.ResponseWriter, r *http.Request) {
	n.mark(w, r, n.Inbox.MarkDelivered, "failed to mark notification delivered")
}

// MarkSeenHandler flags a notification as seen by the caller
func (n Notification) MarkSeenHandler(w http.ResponseWriter, r *http.Request) {
	n.mark(w, r, n.Inbox.MarkSeen, "failed to mark notification seen")
}

func (n Notification) mark(w http.ResponseWriter, r *http.Request, set func(context.Context, string, string) error, failure string) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["notification_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := set(ctx, actor.ID, id); err != nil {
		writeError(w, failure, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// TicketHandler issues a short-lived ticket for the notifications websocket
func (n Notification) TicketHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	ticket, expires, err := n.Tickets.Issue(actor)
	if err != nil {
		writeError(w, "failed to issue ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":    ticket,
		"expiresAt": expires.UTC(),
	})
}

// WebSocketHandler streams the caller's inbox. Undelivered backlog is sent
// first, then every new notification; each one written to the socket is
// marked delivered. Listeners acknowledge with {"type":"seen","id":...}.
func (n Notification) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := n.Tickets.Parse(r.URL.Query().Get("ticket"))
	if err != nil {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "recipientId", actor.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := n.Inbox.Subscribe(ctx, actor.ID)
	if err != nil {
		zap.S().Errorw("failed to subscribe to inbox", "recipientId", actor.ID, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	zap.S().Infow("listener connected to /ws/notifications", "recipientId", actor.ID)

	l := &listener{conn: conn, inbox: n.Inbox, recipientID: actor.ID, sent: map[string]bool{}}
	go l.readLoop(ctx, cancel)

	if err := l.sendBacklog(ctx); err != nil {
		zap.S().Debugw("listener dropped during backlog", "recipientId", actor.ID, "error", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.S().Infow("listener disconnected from /ws/notifications", "recipientId", actor.ID)
			return
		case note, open := <-stream:
			if !open {
				l.close(websocket.CloseGoingAway, "inbox stream ended")
				return
			}
			if err := l.deliver(ctx, note); err != nil {
				zap.S().Debugw("failed to write notification", "recipientId", actor.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := l.ping(); err != nil {
				return
			}
		}
	}
}

// listener is one connected websocket. Writes go through mu since the
// read loop may close the socket concurrently.
type listener struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	inbox       Inbox
	recipientID string
	sent        map[string]bool
}

func (l *listener) sendBacklog(ctx context.Context) error {
	lookupCtx, cancel := api.WithQueryTimeout(ctx)
	defer cancel()
	backlog, err := l.inbox.Inbox(lookupCtx, l.recipientID, backlogSize)
	if err != nil {
		zap.S().Warnw("failed to load inbox backlog", "recipientId", l.recipientID, "error", err)
		return nil
	}
	for _, note := range backlog {
		if note.Delivered {
			continue
		}
		if err := l.deliver(ctx, note); err != nil {
			return err
		}
	}
	return nil
}

func (l *listener) deliver(ctx context.Context, note models.InboxNotification) error {
	if l.sent[note.ID] {
		return nil
	}
	l.mu.Lock()
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := l.conn.WriteJSON(socketMessage{Type: "notification", ID: note.ID, Data: &note})
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.sent[note.ID] = true

	markCtx, cancel := api.WithQueryTimeout(ctx)
	defer cancel()
	if err := l.inbox.MarkDelivered(markCtx, l.recipientID, note.ID); err != nil {
		zap.S().Warnw("failed to mark notification delivered",
			"recipientId", l.recipientID,
			"notificationId", note.ID,
			"error", err)
	}
	return nil
}

func (l *listener) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	l.conn.SetReadLimit(4096)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg socketMessage
		if err := l.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "seen" || msg.ID == "" {
			continue
		}
		markCtx, markCancel := api.WithQueryTimeout(ctx)
		if err := l.inbox.MarkSeen(markCtx, l.recipientID, msg.ID); err != nil {
			zap.S().Warnw("failed to mark notification seen",
				"recipientId", l.recipientID,
				"notificationId", msg.ID,
				"error", err)
		}
		markCancel()
	}
}

func (l *listener) ping() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (l *listener) close(code int, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
