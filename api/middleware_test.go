package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/police-blotter-api/models"
)

type fakeUsers struct {
	users map[string]models.User
}

func (f fakeUsers) FindByEmail(ctx context.Context, email string) (models.User, error) {
	u, ok := f.users[email]
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %s", models.ErrNotFound, email)
	}
	return u, nil
}

func (f fakeUsers) Get(ctx context.Context, id string) (models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
}

type sessionAudit struct {
	actions []models.AuditAction
}

func (s *sessionAudit) Record(ctx context.Context, actorID string, action models.AuditAction, targetType, targetID string, details models.AuditDetails) error {
	s.actions = append(s.actions, action)
	return nil
}

func newTestMiddleware(t *testing.T) (MiddlewareDB, *sessionAudit) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	audit := &sessionAudit{}
	m := MiddlewareDB{
		DB: fakeUsers{users: map[string]models.User{
			"admin@blotter.test":  {ID: "admin-1", Email: "admin@blotter.test", Password: string(hash), Role: models.RoleAdmin, Active: true},
			"desk@blotter.test":   {ID: "desk-1", Email: "desk@blotter.test", Password: string(hash), Role: models.RoleDeskOfficer, Active: true},
			"former@blotter.test": {ID: "former-1", Email: "former@blotter.test", Password: string(hash), Role: models.RoleOfficer},
		}},
		Audit: audit,
	}
	m.SetupGoGuardian()
	return m, audit
}

func TestValidateUser(t *testing.T) {
	m, _ := newTestMiddleware(t)
	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)

	info, err := m.ValidateUser(context.Background(), req, "desk@blotter.test", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "desk-1", Role: models.RoleDeskOfficer}, actorFromInfo(info))

	_, err = m.ValidateUser(context.Background(), req, "desk@blotter.test", "wrong")
	assert.Error(t, err)

	_, err = m.ValidateUser(context.Background(), req, "nobody@blotter.test", "hunter2")
	assert.Error(t, err)

	_, err = m.ValidateUser(context.Background(), req, "former@blotter.test", "hunter2")
	assert.Error(t, err)
}

func TestMiddleware_TokenLifecycle(t *testing.T) {
	m, audit := newTestMiddleware(t)

	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("admin@blotter.test", "hunter2")
	rr := httptest.NewRecorder()
	Middleware(http.HandlerFunc(m.CreateToken)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "admin-1", body["_id"])
	assert.Equal(t, "admin", body["role"])
	token := body["token"]
	require.NotEmpty(t, token)

	var seen models.Actor
	protected := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
	}))
	req = httptest.NewRequest("GET", "/api/v1/reports/r1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.Actor{ID: "admin-1", Role: models.RoleAdmin}, seen)

	req = httptest.NewRequest("DELETE", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	Middleware(http.HandlerFunc(m.RevokeToken)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest("GET", "/api/v1/reports/r1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	assert.Equal(t, []models.AuditAction{models.ActionAdminLogin, models.ActionAdminLogout}, audit.actions)
}

func TestMiddleware_NonAdminLoginIsNotAudited(t *testing.T) {
	m, audit := newTestMiddleware(t)

	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("desk@blotter.test", "hunter2")
	rr := httptest.NewRecorder()
	Middleware(http.HandlerFunc(m.CreateToken)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, audit.actions)
}

func TestMiddleware_Unauthorized(t *testing.T) {
	newTestMiddleware(t)

	rr := httptest.NewRecorder()
	Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/reports/r1", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
