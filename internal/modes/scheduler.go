package modes

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiryInterval is how often temporary modes are checked.
const ExpiryInterval = time.Minute

// Scheduler periodically expires temporary modes.
type Scheduler struct {
	cron     *cron.Cron
	manager  *Manager
	now      func() time.Time
	onChange func()
	logger   *zap.Logger
}

// NewScheduler creates a scheduler that calls onChange after any expiry.
func NewScheduler(manager *Manager, now func() time.Time, onChange func(), logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		// SkipIfStillRunning coalesces overlapping fires.
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		manager:  manager,
		now:      now,
		onChange: onChange,
		logger:   logger,
	}
	spec := fmt.Sprintf("@every %s", ExpiryInterval)
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return nil, fmt.Errorf("schedule mode expiry: %w", err)
	}
	return s, nil
}

// Tick runs one expiry pass.
func (s *Scheduler) Tick() {
	before := s.manager.Snapshot()
	if !s.manager.Expire(s.now()) {
		return
	}
	after := s.manager.Snapshot()
	s.logger.Info("temporary mode expired",
		zap.Bool("temporary_manual_was", before.TemporaryManualMode),
		zap.Bool("temporary_boost_was", before.TemporaryBoostMode),
		zap.Bool("temporary_manual", after.TemporaryManualMode),
		zap.Bool("temporary_boost", after.TemporaryBoostMode))
	if s.onChange != nil {
		s.onChange()
	}
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, zap.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
