package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/police-blotter-api/databases"
	"github.com/linesmerrill/police-blotter-api/models"
)

// Auditor records admin session events
type Auditor interface {
	Record(ctx context.Context, actorID string, action models.AuditAction, targetType, targetID string, details models.AuditDetails) error
}

// MiddlewareDB is a struct that holds the database
type MiddlewareDB struct {
	DB    databases.UserDatabase
	Audit Auditor
	// TokenTTL bounds how long an issued bearer token stays valid
	TokenTTL time.Duration
}

var authenticator auth.Authenticator
var cache store.Cache

// Middleware authenticates the request and stores the caller on its context
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		user, err := authenticator.Authenticate(r)
		if err != nil {
			zap.S().Errorw("unauthorized",
				"url", r.URL)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		actor := actorFromInfo(user)
		zap.S().Debugw("user authenticated", "actorId", actor.ID, "role", actor.Role)
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// CreateToken exchanges basic credentials for a bearer token
func (m MiddlewareDB) CreateToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	email, _, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "basic auth failed", http.StatusUnauthorized)
		return
	}
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "failed to resolve user", http.StatusUnauthorized)
		return
	}

	token := uuid.New().String()
	authUser := auth.NewDefaultUser(email, actor.ID, []string{string(actor.Role)}, nil)
	tokenStrategy := authenticator.Strategy(bearer.CachedStrategyKey)
	if err := auth.Append(tokenStrategy, token, authUser, r); err != nil {
		http.Error(w, "failed to store token", http.StatusInternalServerError)
		return
	}

	if actor.Role == models.RoleAdmin {
		m.recordSession(r.Context(), actor, models.ActionAdminLogin, "basic")
	}

	response := map[string]string{
		"token": token,
		"_id":   actor.ID,
		"role":  string(actor.Role),
	}

	responseBody, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Write(responseBody)
}

// SetupGoGuardian sets up the go-guardian middleware
func (m MiddlewareDB) SetupGoGuardian() {
	ttl := m.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	authenticator = auth.New()
	cache = store.NewFIFO(context.Background(), ttl)
	basicStrategy := basic.New(m.ValidateUser, cache)
	tokenStrategy := bearer.New(bearer.NoOpAuthenticate, cache)

	authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
}

// ValidateUser validates a user
func (m MiddlewareDB) ValidateUser(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	usernameHash := sha256.Sum256([]byte(strings.ToLower(email)))

	lookupCtx, cancel := WithQueryTimeout(ctx)
	defer cancel()
	user, err := m.DB.FindByEmail(lookupCtx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("no matching email found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if !user.Active {
		return nil, fmt.Errorf("user %s is not active", user.ID)
	}

	expectedUsernameHash := sha256.Sum256([]byte(strings.ToLower(user.Email)))
	usernameMatch := subtle.ConstantTimeCompare(usernameHash[:], expectedUsernameHash[:]) == 1

	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if err != nil {
		return nil, fmt.Errorf("failed to compare password")
	}

	if usernameMatch {
		role := user.Role
		if role == "" {
			role = models.RoleCitizen
		}
		return auth.NewDefaultUser(email, user.ID, []string{string(role)}, nil), nil
	}
	return nil, fmt.Errorf("invalid credentials")
}

// RevokeToken revokes a token
func (m MiddlewareDB) RevokeToken(w http.ResponseWriter, r *http.Request) {
	reqToken := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if reqToken == "" {
		http.Error(w, "missing bearer token", http.StatusBadRequest)
		return
	}

	tokenStrategy := authenticator.Strategy(bearer.CachedStrategyKey)
	if err := auth.Revoke(tokenStrategy, reqToken, r); err != nil {
		zap.S().Warnw("failed to revoke token", "error", err)
	}
	if actor, ok := ActorFrom(r.Context()); ok && actor.Role == models.RoleAdmin {
		m.recordSession(r.Context(), actor, models.ActionAdminLogout, "bearer")
	}
	body := fmt.Sprintf(`{"revoked token": "%s"}`, reqToken)
	w.Write([]byte(body))
}

func (m MiddlewareDB) recordSession(ctx context.Context, actor models.Actor, action models.AuditAction, method string) {
	if m.Audit == nil {
		return
	}
	err := m.Audit.Record(ctx, actor.ID, action, models.TargetUser, actor.ID, models.SessionDetails{Method: method})
	if err != nil {
		zap.S().Warnw("failed to audit admin session",
			"actorId", actor.ID,
			"action", action,
			"error", err)
	}
}

func actorFromInfo(info auth.Info) models.Actor {
	actor := models.Actor{ID: info.ID(), Role: models.RoleCitizen}
	if groups := info.Groups(); len(groups) > 0 && groups[0] != "" {
		actor.Role = models.ActorRole(groups[0])
	}
	return actor
}
