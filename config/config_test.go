package config

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"

	"github.com/linesmerrill/police-blotter-api/models"
)

func TestNew(t *testing.T) {
	os.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	os.Setenv("DB_NAME", "test")
	conf := New()

	assert.NotEmpty(t, conf)
	assert.Equal(t, "test", conf.DatabaseName)
}

func TestNewDefaults(t *testing.T) {
	for _, k := range []string{"QUERY_TIMEOUT", "COUNTER_MAX_ATTEMPTS", "BLOTTER_TIMEZONE", "NOTIFICATION_RETENTION_DAYS", "RELAY_MODE", "AMQP_EXCHANGE"} {
		os.Unsetenv(k)
	}
	conf := New()

	assert.Equal(t, 10*time.Second, conf.QueryTimeout)
	assert.Equal(t, 5, conf.CounterMaxAttempts)
	assert.Equal(t, time.UTC, conf.BlotterLocation)
	assert.Equal(t, 30*24*time.Hour, conf.NotificationRetention)
	assert.Equal(t, RelayNone, conf.RelayMode)
	assert.Equal(t, "inbox", conf.AMQPExchange)
}

func TestNewMalformedValuesFallBack(t *testing.T) {
	t.Setenv("QUERY_TIMEOUT", "soon")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "-3")
	t.Setenv("BLOTTER_TIMEZONE", "Mars/Olympus")
	conf := New()

	assert.Equal(t, 10*time.Second, conf.QueryTimeout)
	assert.Equal(t, 5, conf.CounterMaxAttempts)
	assert.Equal(t, time.UTC, conf.BlotterLocation)
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("QUERY_TIMEOUT", "3s")
	t.Setenv("BLOTTER_TIMEZONE", "Asia/Manila")
	t.Setenv("RELAY_MODE", "amqp")
	conf := New()

	assert.Equal(t, 3*time.Second, conf.QueryTimeout)
	assert.Equal(t, "Asia/Manila", conf.BlotterLocation.String())
	assert.Equal(t, RelayAMQP, conf.RelayMode)
}

func TestErrorStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorStatus("error it borked", http.StatusBadRequest, rr, errors.New("bad request"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body models.ErrorMessageResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "error it borked", body.Response.Message)
	assert.Equal(t, "bad request", body.Response.Error)
}

func TestSetLoggerSetsDevelopmentLogger(t *testing.T) {
	l, err := setLogger("development")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(1))
}

func TestSetLoggerSetsProductionLogger(t *testing.T) {
	l, err := setLogger("production")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(2))
}

func TestSetLoggerSetsLocalLogger(t *testing.T) {
	l, err := setLogger("local")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(0))
}
