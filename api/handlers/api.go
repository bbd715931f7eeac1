package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/api"
	"github.com/linesmerrill/police-blotter-api/api/scheduler"
	"github.com/linesmerrill/police-blotter-api/audit"
	"github.com/linesmerrill/police-blotter-api/blotter"
	"github.com/linesmerrill/police-blotter-api/cache"
	"github.com/linesmerrill/police-blotter-api/config"
	"github.com/linesmerrill/police-blotter-api/databases"
	"github.com/linesmerrill/police-blotter-api/models"
	"github.com/linesmerrill/police-blotter-api/notify"
	"github.com/linesmerrill/police-blotter-api/relay"
	"github.com/linesmerrill/police-blotter-api/workflow"
)

const pushTokenCacheSize = 4096

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler

	client     databases.ClientHelper
	dbHelper   databases.DatabaseHelper
	relay      notify.Relay
	closers    []io.Closer
	pushTokens *cache.TTL[string, []string]
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	reports := databases.NewReportDatabase(a.dbHelper)
	officers := databases.NewOfficerDatabase(a.dbHelper)
	auditLogs := databases.NewAuditLogDatabase(a.dbHelper)
	pushTokens := databases.NewPushTokenDatabase(a.dbHelper)

	counter := blotter.NewCounter(databases.NewCounterDatabase(a.dbHelper))
	if a.Config.CounterMaxAttempts > 0 {
		counter.MaxAttempts = a.Config.CounterMaxAttempts
	}
	if a.Config.BlotterLocation != nil {
		counter.Location = a.Config.BlotterLocation
	}

	auditLog := audit.New(auditLogs)
	dispatcher := notify.NewDispatcher(databases.NewNotificationDatabase(a.dbHelper), a.relay)
	engine := workflow.NewOrchestrator(reports, officers, counter, auditLog, dispatcher)
	if a.client != nil {
		engine.Tx = databases.NewTransactor(a.client)
	}

	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper), Audit: auditLog}
	m.SetupGoGuardian()

	a.Scheduler = scheduler.NewScheduler(dispatcher, a.Config.NotificationRetention)

	rep := Report{Engine: engine}
	adm := Admin{Engine: engine, Audit: auditLogs}
	n := Notification{Inbox: dispatcher, Tickets: api.NewTickets(a.jwtSecret())}
	pt := PushToken{DB: pushTokens}
	if a.pushTokens != nil {
		pt.Invalidate = a.pushTokens.Invalidate
	}

	r := mux.NewRouter()
	r.Use(api.LoggingMiddleware)

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	// the websocket authenticates with a ticket and must not sit behind the
	// buffering timeout middleware
	r.HandleFunc("/ws/notifications", n.WebSocketHandler).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(a.requestTimeout()))

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(m.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/reports", api.Middleware(http.HandlerFunc(rep.CreateReportHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}", api.Middleware(http.HandlerFunc(rep.ReportByIDHandler))).Methods("GET")
	apiCreate.Handle("/reports/{report_id}/validate", api.Middleware(http.HandlerFunc(rep.ValidateReportHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/assign", api.Middleware(http.HandlerFunc(rep.AssignReportHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/status", api.Middleware(http.HandlerFunc(rep.ChangeStatusHandler))).Methods("PUT")
	apiCreate.Handle("/reports/{report_id}/accept", api.Middleware(http.HandlerFunc(rep.AcceptAssignmentHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/decline", api.Middleware(http.HandlerFunc(rep.DeclineAssignmentHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/reassign", api.Middleware(http.HandlerFunc(rep.ReassignHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/closure/approve", api.Middleware(http.HandlerFunc(rep.ApproveClosureHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/closure/reject", api.Middleware(http.HandlerFunc(rep.RejectClosureHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/priority", api.Middleware(http.HandlerFunc(rep.ChangePriorityHandler))).Methods("PUT")
	apiCreate.Handle("/reports/{report_id}/notes", api.Middleware(http.HandlerFunc(rep.OfficerNoteHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/comments", api.Middleware(http.HandlerFunc(rep.CommentHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/evidence", api.Middleware(http.HandlerFunc(rep.EvidenceHandler))).Methods("POST")

	apiCreate.Handle("/officers/{officer_id}/status", api.Middleware(http.HandlerFunc(adm.OfficerStatusHandler))).Methods("PUT")
	apiCreate.Handle("/officers/{officer_id}/role", api.Middleware(http.HandlerFunc(adm.OfficerRoleHandler))).Methods("PUT")
	apiCreate.Handle("/audit-logs", api.Middleware(http.HandlerFunc(adm.AuditLogsHandler))).Methods("GET")

	apiCreate.Handle("/notifications", api.Middleware(http.HandlerFunc(n.NotificationsHandler))).Methods("GET")
	apiCreate.Handle("/notifications/ws-ticket", api.Middleware(http.HandlerFunc(n.TicketHandler))).Methods("POST")
	apiCreate.Handle("/notifications/{notification_id}/delivered", api.Middleware(http.HandlerFunc(n.MarkDeliveredHandler))).Methods("PUT")
	apiCreate.Handle("/notifications/{notification_id}/seen", api.Middleware(http.HandlerFunc(n.MarkSeenHandler))).Methods("PUT")

	apiCreate.Handle("/push-tokens", api.Middleware(http.HandlerFunc(pt.RegisterPushTokenHandler))).Methods("POST")
	apiCreate.Handle("/push-tokens/{token}", api.Middleware(http.HandlerFunc(pt.RemovePushTokenHandler))).Methods("DELETE")

	return r
}

// Initialize connects to the database, prepares indexes and the push relay,
// then builds the router
func (a *App) Initialize() error {
	api.SetQueryTimeout(a.Config.QueryTimeout)

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}
	a.client = client

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect(ctx)
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	if err := client.Ping(ctx); err != nil {
		zap.S().With(err).Error("failed to ping database")
		return err
	}
	zap.S().Info("police-blotter-api has connected to the database")

	if err := a.ensureIndexes(ctx); err != nil {
		return err
	}
	if err := a.initializeRelay(); err != nil {
		return err
	}

	// initialize api router
	a.initializeRoutes()
	return nil
}

// Close releases the relay and the database connection
func (a *App) Close(ctx context.Context) {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			zap.S().Warnw("failed to close resource", "error", err)
		}
	}
	if a.client != nil {
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func (a *App) ensureIndexes(ctx context.Context) error {
	indexes := map[string]func() error{
		"reports": func() error {
			return a.dbHelper.Collection("reports").CreateIndexes(ctx, databases.ReportIndexes)
		},
		"audit_logs": func() error {
			return a.dbHelper.Collection("audit_logs").CreateIndexes(ctx, databases.AuditLogIndexes)
		},
		"notifications": func() error {
			return a.dbHelper.Collection("notifications").CreateIndexes(ctx, databases.NotificationIndexes)
		},
	}
	for name, create := range indexes {
		if err := create(); err != nil {
			zap.S().Errorw("failed to create indexes", "collection", name, "error", err)
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (a *App) initializeRelay() error {
	switch a.Config.RelayMode {
	case config.RelayAMQP:
		amqpRelay, err := relay.NewAMQP(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPRoutingKey)
		if err != nil {
			zap.S().With(err).Error("failed to connect push relay")
			return err
		}
		a.relay = amqpRelay
		a.closers = append(a.closers, amqpRelay)
	case config.RelayExpo:
		tokens := databases.NewPushTokenDatabase(a.dbHelper)
		a.pushTokens = cache.NewTTL[string, []string](pushTokenCacheSize, a.Config.PushTokenTTL, tokens.TokensFor)
		a.relay = relay.NewExpo(relay.TokenSourceFunc(a.pushTokens.Get))
	}
	zap.S().Infow("push relay configured", "mode", a.Config.RelayMode)
	return nil
}

func (a *App) jwtSecret() string {
	if a.Config.JWTSecret != "" {
		return a.Config.JWTSecret
	}
	zap.S().Warn("JWT_SECRET is not set, websocket tickets will not survive a restart")
	return uuid.New().String()
}

func (a *App) requestTimeout() time.Duration {
	return a.Config.QueryTimeout + 5*time.Second
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
