package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linesmerrill/police-blotter-api/models"
)

var a App

func executeRequest(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, req)
	return rr
}

func checkResponseCode(t *testing.T, expected, actual int) {
	if expected != actual {
		t.Errorf("Expected response code %d. Got %d\n", expected, actual)
	}
}

func TestUnknownRoute(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("GET", "/asdf", nil)
	response := executeRequest(req)

	checkResponseCode(t, http.StatusNotFound, response.Code)
}

func TestHealthCheckRoute(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("GET", "/health", nil)
	response := executeRequest(req)

	checkResponseCode(t, http.StatusOK, response.Code)

	if !strings.Contains(response.Body.String(), "alive") {
		t.Errorf("Expected 'alive' in the reponse. Got '%s'", response.Body.String())
	}
}

func TestApp_ReportHandlerUnauthorized(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("GET", "/api/v1/reports/r1", nil)
	response := executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
}

func TestApp_ReportHandlerUnknownToken(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("POST", "/api/v1/reports/r1/accept", nil)
	req.Header.Add("Authorization", "Bearer asdfasdf")
	response := executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
}

func TestApp_WrongMethodIsNotRouted(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("DELETE", "/api/v1/reports/r1/validate", nil)
	response := executeRequest(req)

	checkResponseCode(t, http.StatusMethodNotAllowed, response.Code)
}

func TestApp_WebSocketRequiresTicket(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("GET", "/ws/notifications", nil)
	response := executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
}

func TestApp_RequestIDHeader(t *testing.T) {
	a.Router = a.New()
	req, _ := http.NewRequest("GET", "/api/v1/notifications", nil)
	req.Header.Set("X-Request-ID", "req-42")
	response := executeRequest(req)

	assert.Equal(t, "req-42", response.Header().Get("X-Request-ID"))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{models.ErrMissingRequiredField, http.StatusBadRequest},
		{models.ErrInvalidField, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.ErrNoEligibleOfficers, http.StatusUnprocessableEntity},
		{models.ErrCounterContention, http.StatusServiceUnavailable},
		{models.ErrSequenceExhausted, http.StatusServiceUnavailable},
		{models.ErrTimeout, http.StatusGatewayTimeout},
		{models.ErrEffectFailure, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("%w: report r1", c.err)
		assert.Equal(t, c.want, statusFor(wrapped), c.err.Error())
	}
}

func TestDecodeBody(t *testing.T) {
	var req caseRequest
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"officerId":"AUTO","notes":"ok"}`))
	assert.NoError(t, decodeBody(r, &req))
	assert.Equal(t, "AUTO", req.OfficerID)

	r = httptest.NewRequest("POST", "/", nil)
	assert.NoError(t, decodeBody(r, &req))

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"officerId":`))
	assert.True(t, errors.Is(decodeBody(r, &req), models.ErrInvalidField))
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, int64(50), queryLimit(httptest.NewRequest("GET", "/", nil), 50))
	assert.Equal(t, int64(5), queryLimit(httptest.NewRequest("GET", "/?limit=5", nil), 50))
	assert.Equal(t, int64(50), queryLimit(httptest.NewRequest("GET", "/?limit=-1", nil), 50))
	assert.Equal(t, int64(50), queryLimit(httptest.NewRequest("GET", "/?limit=ten", nil), 50))
}
