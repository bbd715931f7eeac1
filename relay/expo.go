package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

const (
	// ExpoPushURL is the Expo push API endpoint
	ExpoPushURL    = "https://exp.host/--/api/v2/push/send"
	expoBatchLimit = 100
)

// TokenSource resolves a recipient's registered push tokens
type TokenSource interface {
	TokensFor(ctx context.Context, userID string) ([]string, error)
}

// TokenSourceFunc adapts a lookup function to TokenSource
type TokenSourceFunc func(ctx context.Context, userID string) ([]string, error)

// TokensFor implements TokenSource
func (f TokenSourceFunc) TokensFor(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// ExpoPushMessage represents a single push notification message for the Expo push API
type ExpoPushMessage struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
}

// Expo sends notifications to the recipient's registered mobile devices
type Expo struct {
	Tokens TokenSource
	Client *http.Client
	URL    string
}

// NewExpo returns an Expo relay resolving tokens through tokens
func NewExpo(tokens TokenSource) *Expo {
	return &Expo{
		Tokens: tokens,
		Client: &http.Client{Timeout: 15 * time.Second},
		URL:    ExpoPushURL,
	}
}

// Push sends n to every device of its recipient. Tokens are batched in groups
// of 100 per the Expo API limit; a failed batch does not stop the others.
func (e *Expo) Push(ctx context.Context, n models.InboxNotification) error {
	tokens, err := e.Tokens.TokensFor(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to load push tokens for %s: %w", n.RecipientID, err)
	}
	if len(tokens) == 0 {
		return nil
	}

	data := map[string]interface{}{"notificationId": n.ID}
	for k, v := range n.Data {
		data[k] = v
	}
	messages := make([]ExpoPushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, ExpoPushMessage{
			To:        token,
			Title:     n.Title,
			Body:      n.Body,
			Sound:     "default",
			Data:      data,
			Priority:  "high",
			ChannelID: "default",
		})
	}

	var firstErr error
	for i := 0; i < len(messages); i += expoBatchLimit {
		end := i + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		if err := e.sendBatch(ctx, messages[i:end]); err != nil {
			zap.S().Errorw("failed to send expo push batch",
				"recipientId", n.RecipientID,
				"from", i,
				"to", end-1,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Expo) sendBatch(ctx context.Context, messages []ExpoPushMessage) error {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo push API returned status %d", resp.StatusCode)
	}
	zap.S().Debugw("sent expo push batch", "count", len(messages))
	return nil
}
