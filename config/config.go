package config

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

// Relay modes
const (
	RelayNone = "none"
	RelayAMQP = "amqp"
	RelayExpo = "expo"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string

	QueryTimeout          time.Duration
	CounterMaxAttempts    int
	BlotterLocation       *time.Location
	NotificationRetention time.Duration

	RelayMode      string
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	JWTSecret    string
	PushTokenTTL time.Duration
}

// New sets up all config related services
func New() *Config {
	env := os.Getenv("ENV")

	//setup zap logger and replace default logger
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:          os.Getenv("DB_URI"),
		DatabaseName: os.Getenv("DB_NAME"),
		BaseURL:      os.Getenv("BASE_URL"),
		Port:         os.Getenv("PORT"),
		Env:          env,

		QueryTimeout:          duration("QUERY_TIMEOUT", 10*time.Second),
		CounterMaxAttempts:    number("COUNTER_MAX_ATTEMPTS", 5),
		BlotterLocation:       location("BLOTTER_TIMEZONE"),
		NotificationRetention: time.Duration(number("NOTIFICATION_RETENTION_DAYS", 30)) * 24 * time.Hour,

		RelayMode:      stringOr("RELAY_MODE", RelayNone),
		AMQPURL:        os.Getenv("AMQP_URL"),
		AMQPExchange:   stringOr("AMQP_EXCHANGE", "inbox"),
		AMQPRoutingKey: stringOr("AMQP_ROUTING_KEY", "notification"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		PushTokenTTL: duration("PUSH_TOKEN_TTL", 5*time.Minute),
	}
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		zap.S().Warnw("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func number(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		zap.S().Warnw("invalid number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func location(key string) *time.Location {
	v := os.Getenv(key)
	if v == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		zap.S().Warnw("invalid timezone, using UTC", "key", key, "value", v)
		return time.UTC
	}
	return loc
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "status", httpStatusCode, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	resp := models.ErrorMessageResponse{Response: models.MessageError{Message: message}}
	if err != nil {
		resp.Response.Error = err.Error()
	}
	b, _ := json.Marshal(resp)
	w.Write(b)
}
