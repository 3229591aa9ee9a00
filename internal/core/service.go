package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Defaults applied when Options leaves a value unset.
const (
	DefaultAccountWorkers = 4
	DefaultAccountTimeout = 10 * time.Second
	DefaultEmailTimeout   = 15 * time.Second
)

// Dependencies are the collaborators the pipeline calls out to.
type Dependencies struct {
	Registry *Registry // Defaults to DefaultRegistry()
	Records  RecordStore
	History  HistoryStore
	Accounts AccountProvider
	Notifier Notifier // Defaults to a notifier that only logs
}

// Options tune the import pipeline.
type Options struct {
	AccountWorkers int
	AccountTimeout time.Duration
	EmailTimeout   time.Duration
	MaxConcurrent  int
	MaxWait        time.Duration
	LoginURL       string
}

// Service runs previews, imports, account retries and exports.
// It holds no per-request state; everything a run produces lives in its
// returned result.
type Service struct {
	registry *Registry
	records  RecordStore
	history  HistoryStore
	accounts AccountProvider
	notifier Notifier
	limiter  *ImportLimiter

	accountWorkers int
	accountTimeout time.Duration
	emailTimeout   time.Duration
	loginURL       string

	now           func() time.Time
	newCredential func(AccountRole) (string, error)
}

// NewService creates a new Service instance.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.Records == nil {
		return nil, errors.New("record store is required")
	}
	if deps.History == nil {
		return nil, errors.New("history store is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("account provider is required")
	}

	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	if deps.Notifier == nil {
		deps.Notifier = logNotifier{}
	}
	if opts.AccountWorkers <= 0 {
		opts.AccountWorkers = DefaultAccountWorkers
	}
	if opts.AccountTimeout <= 0 {
		opts.AccountTimeout = DefaultAccountTimeout
	}
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = DefaultEmailTimeout
	}

	return &Service{
		registry:       deps.Registry,
		records:        deps.Records,
		history:        deps.History,
		accounts:       deps.Accounts,
		notifier:       deps.Notifier,
		limiter:        NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		accountWorkers: opts.AccountWorkers,
		accountTimeout: opts.AccountTimeout,
		emailTimeout:   opts.EmailTimeout,
		loginURL:       opts.LoginURL,
		now:            time.Now,
		newCredential:  NewTemporaryCredential,
	}, nil
}

// Registry returns the module registry the service resolves ids against.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Module returns a module definition by id.
func (s *Service) Module(id string) (ModuleDefinition, error) {
	return s.registry.Get(id)
}

// ListModules returns summaries of every registered module.
func (s *Service) ListModules() []ModuleSummary {
	return s.registry.List()
}

// ImportLimiterStatus returns the current limiter state for monitoring.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until all active imports complete or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// logNotifier stands in when no mail transport is configured.
type logNotifier struct{}

func (logNotifier) SendCredentialEmail(ctx context.Context, msg CredentialEmail) error {
	slog.InfoContext(ctx, "credential email not sent: no mail transport configured",
		"to", msg.To,
		"role", msg.Role,
	)
	return nil
}
