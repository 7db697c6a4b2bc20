package worker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/service"
)

// EscalationChecker runs one escalation pass.
type EscalationChecker interface {
	CheckEscalations(ctx context.Context) service.PassResult
}

// EscalationScheduler triggers escalation passes on a cron schedule. A tick
// that fires while the previous pass is still running is dropped.
type EscalationScheduler struct {
	cron    *cron.Cron
	checker EscalationChecker
	spec    string
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
}

// NewEscalationScheduler builds the scheduler; spec accepts cron expressions
// and descriptors such as "@every 5m".
func NewEscalationScheduler(checker EscalationChecker, spec string, timeout time.Duration, logger *zap.Logger) *EscalationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec == "" {
		spec = "@every 5m"
	}
	logger = logger.Named("scheduler")
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	))
	return &EscalationScheduler{
		cron:    c,
		checker: checker,
		spec:    spec,
		timeout: timeout,
		logger:  logger,
	}
}

// Start registers the job and starts the cron loop.
func (s *EscalationScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.checker == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.runPass); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("escalation scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts scheduling and waits for a running pass, up to ctx.
func (s *EscalationScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("escalation pass still running at shutdown")
	}
}

func (s *EscalationScheduler) runPass() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result := s.checker.CheckEscalations(ctx)
	if result.Aborted {
		s.logger.Warn("escalation pass aborted")
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
