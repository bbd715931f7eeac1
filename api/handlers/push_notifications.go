package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/api"
	"github.com/linesmerrill/police-blotter-api/databases"
	"github.com/linesmerrill/police-blotter-api/models"
)

// PushToken exported for testing purposes
type PushToken struct {
	DB databases.PushTokenDatabase
	// Invalidate drops any cached token list for a user after it changes
	Invalidate func(userID string)
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// RegisterPushTokenHandler stores an Expo push token for the caller's device
func (p PushToken) RegisterPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req pushTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, "failed to register push token", fmt.Errorf("%w: token", models.ErrMissingRequiredField))
		return
	}
	if !strings.HasPrefix(req.Token, "ExponentPushToken[") && !strings.HasPrefix(req.Token, "ExpoPushToken[") {
		writeError(w, "failed to register push token", fmt.Errorf("%w: token is not an Expo push token", models.ErrInvalidField))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	now := time.Now().UTC()
	err := p.DB.Register(ctx, models.PushToken{
		Token:     req.Token,
		UserID:    actor.ID,
		Platform:  req.Platform,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		writeError(w, "failed to register push token", err)
		return
	}
	p.invalidate(actor.ID)
	zap.S().Debugw("registered push token", "userId", actor.ID, "platform", req.Platform)
	writeJSON(w, http.StatusOK, map[string]string{"token": req.Token})
}

// RemovePushTokenHandler forgets one of the caller's push tokens
func (p PushToken) RemovePushTokenHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	token := mux.Vars(r)["token"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := p.DB.Remove(ctx, actor.ID, token); err != nil {
		writeError(w, "failed to remove push token", err)
		return
	}
	p.invalidate(actor.ID)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (p PushToken) invalidate(userID string) {
	if p.Invalidate != nil {
		p.Invalidate(userID)
	}
}
