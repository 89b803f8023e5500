// Package commands implements the typed command boundary: the desktop
// shell's invoke surface, each command taking a plain Go struct and
// returning a plain Go struct or a *commands.Error. It is the only place
// that touches more than one subsystem at once — vault lifecycle,
// scanning, removal, scheduling, privacy, and LLM routing are each wired
// together here per vault rather than inside any one of those packages.
package commands

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/audit"
	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/browser"
	"github.com/infiniteinsight/spectral/internal/llm"
	"github.com/infiniteinsight/spectral/internal/privacy"
	"github.com/infiniteinsight/spectral/internal/removal"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/scanner"
	"github.com/infiniteinsight/spectral/internal/scheduler"
	"github.com/infiniteinsight/spectral/internal/vault"
	"github.com/infiniteinsight/spectral/internal/websocket"
)

// hubNotifier adapts a *websocket.Hub to the scanner.Notifier and
// removal.Notifier capability interfaces.
type hubNotifier struct {
	hub *websocket.Hub
}

func (n hubNotifier) Publish(topic string, msgType string, payload any) {
	n.hub.Publish(topic, websocket.Message{
		Type:    websocket.MessageType(msgType),
		Topic:   topic,
		Payload: payload,
	})
}

// session bundles every per-vault collaborator that only makes sense once
// a vault is unlocked. A session is built once, on vault_create/vault_unlock,
// and torn down on vault_lock.
type session struct {
	vault      *vault.Vault
	scanJobs   repositories.ScanJobRepository
	brokerScans repositories.BrokerScanRepository
	findings   repositories.FindingRepository
	removals   repositories.RemovalAttemptRepository
	discovery  repositories.DiscoveryFindingRepository
	scheduled  repositories.ScheduledJobRepository
	settings   repositories.SettingsRepository
	auditLog   *audit.Log
	privacy    *privacy.Engine
	orch       *scanner.Orchestrator
	removalWrk *removal.Worker
	sched      *scheduler.Scheduler
	router     *llm.Router
}

// Service holds every dependency shared across vaults: the data directory
// vaults live under, the broker registry loaded once at startup, and the
// set of currently unlocked vault sessions.
type Service struct {
	dataDir  string
	registry *broker.Registry
	actions  browser.Actions
	mailer   removal.Sender
	verifier scheduler.RemovalVerifier
	hub      *websocket.Hub
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// New returns a Service. actions is the browser automation capability the
// scan orchestrator and removal worker submit forms through; mailer and
// verifier may be nil. With a nil mailer, removals for brokers whose
// removal method is email fail with an error and end Failed once their
// retries are spent; with a nil verifier, scheduled verify_removals ticks
// are no-ops. hub may be nil, in which case scan,
// discovery, and removal progress events are simply not published.
func New(dataDir string, registry *broker.Registry, actions browser.Actions, mailer removal.Sender, verifier scheduler.RemovalVerifier, hub *websocket.Hub, logger *zap.Logger) *Service {
	return &Service{
		dataDir:  dataDir,
		registry: registry,
		actions:  actions,
		mailer:   mailer,
		verifier: verifier,
		hub:      hub,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

func (s *Service) getSession(vaultID string) (*session, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[vaultID]
	if !ok {
		return nil, newError(CodeVaultLocked, fmt.Sprintf("vault %q is not unlocked", vaultID))
	}
	return sess, nil
}

func (s *Service) addSession(vaultID string, v *vault.Vault) (*session, error) {
	database, err := v.DB()
	if err != nil {
		return nil, err
	}

	scanJobs := repositories.NewScanJobRepository(database)
	brokerScans := repositories.NewBrokerScanRepository(database)
	findings := repositories.NewFindingRepository(database)
	removals := repositories.NewRemovalAttemptRepository(database)
	discoveryRepo := repositories.NewDiscoveryFindingRepository(database)
	scheduled := repositories.NewScheduledJobRepository(database)
	settings := repositories.NewSettingsRepository(database)
	auditRepo := repositories.NewAuditEntryRepository(database)
	auditLog := audit.New(auditRepo)
	privacyEngine := privacy.New(settings, auditLog)

	orch := scanner.New(s.registry, scanJobs, brokerScans, findings, s.actions, s.logger)
	webform := removal.NewWebFormSubmitter(s.actions)
	removalWrk := removal.NewWorker(s.registry, removals, findings, v, webform, s.mailer, s.logger)
	if s.hub != nil {
		orch.WithNotifier(hubNotifier{hub: s.hub})
		removalWrk.WithNotifier(hubNotifier{hub: s.hub}, vaultID)
	}

	sched, err := scheduler.New(scheduled, v, orch, s.verifier, s.logger)
	if err != nil {
		return nil, fmt.Errorf("commands: failed to build scheduler for vault %q: %w", vaultID, err)
	}
	if err := sched.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("commands: failed to start scheduler for vault %q: %w", vaultID, err)
	}

	router := llm.NewRouter(llm.DefaultRoutingPreference())

	sess := &session{
		vault:       v,
		scanJobs:    scanJobs,
		brokerScans: brokerScans,
		findings:    findings,
		removals:    removals,
		discovery:   discoveryRepo,
		scheduled:   scheduled,
		settings:    settings,
		auditLog:    auditLog,
		privacy:     privacyEngine,
		orch:        orch,
		removalWrk:  removalWrk,
		sched:       sched,
		router:      router,
	}

	s.mu.Lock()
	s.sessions[vaultID] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *Service) removeSession(vaultID string) {
	s.mu.Lock()
	sess, ok := s.sessions[vaultID]
	delete(s.sessions, vaultID)
	s.mu.Unlock()
	if ok && sess.sched != nil {
		_ = sess.sched.Stop()
	}
}

func (s *Service) isUnlocked(vaultID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[vaultID]
	return ok
}
