// Command soctalkd runs the SocTalk SOC agent: it polls a SIEM for alerts,
// correlates them into investigations, drives each through the enrichment
// and verdict workflow, and serves the REST/SSE dashboard API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/gbrigandi/soctalk/pkg/api"
	"github.com/gbrigandi/soctalk/pkg/auth"
	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/correlator"
	"github.com/gbrigandi/soctalk/pkg/database"
	"github.com/gbrigandi/soctalk/pkg/emitter"
	"github.com/gbrigandi/soctalk/pkg/hil"
	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/poller"
	"github.com/gbrigandi/soctalk/pkg/queue"
	"github.com/gbrigandi/soctalk/pkg/settings"
	"github.com/gbrigandi/soctalk/pkg/slack"
	"github.com/gbrigandi/soctalk/pkg/sse"
	"github.com/gbrigandi/soctalk/pkg/workflow"
	"github.com/gbrigandi/soctalk/pkg/workflow/nodes"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, relying on process environment", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("soctalkd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database", "host", dbCfg.Host, "database", dbCfg.Database)

	db := dbClient.DB()
	emt := emitter.New(db)
	cp := checkpoint.New(db)
	bus := sse.NewBus(64)
	tailer := sse.NewTailer(db, bus, 0)
	if err := tailer.Start(ctx); err != nil {
		return fmt.Errorf("start event tailer: %w", err)
	}

	settingsProvider := settings.NewProvider(db, settings.IsReadOnly())
	cfg, err := settingsProvider.Get(ctx)
	if err != nil {
		return fmt.Errorf("load runtime settings: %w", err)
	}
	slog.Info("runtime settings resolved",
		"polling_interval", cfg.PollingInterval, "batch_size", cfg.BatchSize,
		"correlation_window", cfg.CorrelationWindow, "hil_backend", cfg.HILBackend)

	authMode, err := auth.ModeFromEnv()
	if err != nil {
		return fmt.Errorf("resolve auth mode: %w", err)
	}
	var authenticator *auth.Authenticator
	if authMode != auth.ModeNone {
		authenticator = auth.New(authMode)
	}

	resolver := hil.NewResolver(db, emt)

	dashboardURL := getEnv("DASHBOARD_URL", "http://localhost:8080")
	slackService := slack.NewService(slack.ServiceConfig{
		Token:        os.Getenv("SLACK_BOT_TOKEN"),
		Channel:      os.Getenv("SLACK_CHANNEL"),
		DashboardURL: dashboardURL,
	})
	chatBackend := hil.NewChatBackend(slackService)
	if slackService != nil {
		slog.Info("slack chat backend configured", "channel", os.Getenv("SLACK_CHANNEL"))
	}

	rc := workflow.RunConfig{
		Emitter:        emt,
		Analyzer:       integrations.NewBreakerAnalyzerClient(integrations.NewStubAnalyzerClient()),
		IR:             integrations.NewBreakerIRClient(integrations.NewStubIRClient()),
		TI:             integrations.NewBreakerTIClient(integrations.NewStubTIClient()),
		Wazuh:          integrations.NewBreakerWazuhClient(integrations.NewStubWazuhClient()),
		FastModel:      integrations.NewStubChatModel(`{"next_action":"VERDICT","action_reasoning":"no further enrichment configured","tp_confidence":0.5,"confidence_reasoning":"no enrichment backend wired"}`),
		ReasoningModel: integrations.NewStubChatModel(`{"decision":"close","confidence":0.5,"impact":"low","urgency":"low","evidence":[],"recommendation":"no action","reasoning":"no reasoning backend wired"}`),
		HILBackendName: cfg.HILBackend,
	}
	eng := workflow.New(db, cp, rc, nodes.Registry())

	scanner := hil.NewResumeScanner(db, cp, eng)

	server := api.NewServer(dbClient, emt, cp, resolver, settingsProvider, bus, authenticator)
	server.Router().POST("/slack/interactions", gin.WrapF(chatBackend.HandleInteraction(os.Getenv("SLACK_SIGNING_SECRET"))))

	pipe := newPipeline(db, emt, correlator.Config{CorrelationWindow: cfg.CorrelationWindow})
	pipe.resolver = resolver
	pipe.chat = chatBackend
	pipe.dashboardURL = dashboardURL
	pipe.hilBackend = cfg.HILBackend
	pq := queue.NewPriorityQueue(getEnvInt("SOCTALK_QUEUE_SIZE", 500))

	siem := integrations.NewBreakerSIEMClient(integrations.NewStubSIEMClient())
	pollerCfg := poller.Config{
		Interval:          cfg.PollingInterval,
		MaxAlertsPerPoll:  getEnvInt("SOCTALK_MAX_ALERTS_PER_POLL", 1000),
		BatchSize:         cfg.BatchSize,
		SeenCacheCapacity: getEnvInt("SOCTALK_SEEN_CACHE_CAPACITY", 10000),
	}
	p := poller.New(siem, pollerCfg, nil)

	var wg sync.WaitGroup

	httpSrv := &http.Server{Addr: ":" + getEnv("HTTP_PORT", "8080"), Handler: server.Router()}
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tailer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner.Run(ctx, 5*time.Second)
	}()

	batches := make(chan []integrations.RawAlert, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx, batches)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-batches:
				if !ok {
					return
				}
				pipe.ingest(ctx, batch, pq)
			}
		}
	}()

	workers := getEnvInt("SOCTALK_WORKERS", 4)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipe.runWorker(ctx, pq, eng)
		}()
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, draining in-flight work")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	wg.Wait()
	return nil
}

// pipeline bridges the correlator's output to the priority queue: it
// persists each new investigation's creation and correlated alerts, then
// hands the in-memory workflow state to the next free worker by investigation
// id. The read-model row the queue orders on carries no alert payload, so
// pendingStates is what lets a worker recover the state it must hand to the
// engine.
type pipeline struct {
	db            *sql.DB
	emitter       *emitter.Emitter
	correlatorCfg correlator.Config

	resolver     *hil.Resolver
	chat         *hil.ChatBackend
	dashboardURL string
	hilBackend   string

	mu            sync.Mutex
	pendingStates map[uuid.UUID]*workflow.State
}

func newPipeline(db *sql.DB, emt *emitter.Emitter, cfg correlator.Config) *pipeline {
	return &pipeline{
		db:            db,
		emitter:       emt,
		correlatorCfg: cfg,
		pendingStates: make(map[uuid.UUID]*workflow.State),
	}
}

// ingest correlates one poll batch and enqueues a new investigation per
// group. Persistence failures are logged and the group is dropped; the poller
// has already recorded its alert ids as seen, so those alerts are not fetched
// again.
func (p *pipeline) ingest(ctx context.Context, batch []integrations.RawAlert, pq *queue.PriorityQueue) {
	groups := correlator.Correlate(batch, p.correlatorCfg)
	for _, group := range groups {
		id := uuid.New()
		if err := p.createInvestigation(ctx, id, group); err != nil {
			slog.Error("failed to persist correlated investigation", "investigation_id", id, "error", err)
			continue
		}

		st := workflow.NewState(id, group.Title, group.MaxSeverity, group.Alerts)
		p.mu.Lock()
		p.pendingStates[id] = st
		p.mu.Unlock()

		inv := models.Investigation{ID: id, Title: group.Title, MaxSeverity: group.MaxSeverity}
		if !pq.Add(inv) {
			slog.Warn("investigation rejected by queue (duplicate, capacity, or title-blocked)",
				"investigation_id", id, "title", group.Title)
			p.mu.Lock()
			delete(p.pendingStates, id)
			p.mu.Unlock()
		}
	}
}

// createInvestigation appends INVESTIGATION_CREATED followed by one
// ALERT_CORRELATED per alert in a single transaction, so a crash mid-group
// never leaves a partially-recorded investigation visible to the dashboard.
func (p *pipeline) createInvestigation(ctx context.Context, id uuid.UUID, group correlator.Group) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin investigation creation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := p.emitter.InvestigationCreated(ctx, tx, id, group.Title, group.MaxSeverity); err != nil {
		return fmt.Errorf("emit investigation created: %w", err)
	}

	version := 1
	for _, alert := range group.Alerts {
		if _, err := p.emitter.AlertCorrelated(ctx, tx, id, alert, version); err != nil {
			return fmt.Errorf("emit alert correlated for %s: %w", alert.ID, err)
		}
		version++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit investigation creation: %w", err)
	}
	return nil
}

func (p *pipeline) runWorker(ctx context.Context, pq *queue.PriorityQueue, eng *workflow.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := pq.Get(time.Second)
		if !ok {
			continue
		}

		p.mu.Lock()
		st, found := p.pendingStates[item.Investigation.ID]
		delete(p.pendingStates, item.Investigation.ID)
		p.mu.Unlock()
		if !found {
			slog.Error("queued investigation has no pending state, dropping", "investigation_id", item.Investigation.ID)
			continue
		}

		suspended, err := eng.Run(ctx, st)
		if err != nil {
			slog.Error("workflow run failed", "investigation_id", st.InvestigationID, "error", err)
			continue
		}
		pq.MarkCompleted(st.InvestigationID.String(), st.Title)
		if suspended {
			slog.Info("investigation suspended for human review", "investigation_id", st.InvestigationID)
			if p.hilBackend == "chat" {
				go p.awaitChatDecision(ctx, st.InvestigationID, eng)
			}
		} else {
			slog.Info("investigation reached a terminal node", "investigation_id", st.InvestigationID)
		}
	}
}

// awaitChatDecision races the chat button against the dashboard for one
// suspended investigation and, if chat wins, resumes the engine itself. A
// dashboard win needs no action here: hil.ResumeScanner already drives it
// forward, and the loser of the race (whichever resume call runs second)
// simply fails its expectedVersion check and logs a non-fatal concurrency
// error.
func (p *pipeline) awaitChatDecision(ctx context.Context, investigationID uuid.UUID, eng *workflow.Engine) {
	outcome, err := p.chat.AwaitViaChat(ctx, p.resolver, investigationID, p.dashboardURL)
	if err != nil {
		slog.Error("chat await failed", "investigation_id", investigationID, "error", err)
		return
	}
	if outcome.Source != "chat" {
		return
	}
	if _, err := eng.Resume(ctx, investigationID, workflow.ReviewInjection{
		Decision: outcome.Decision,
		Feedback: outcome.Feedback,
		Reviewer: outcome.Reviewer,
		Source:   "chat",
	}); err != nil {
		slog.Error("failed to resume workflow after chat decision", "investigation_id", investigationID, "error", err)
	}
}
