package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"sqlbridge/internal/store"
)

// terminalRetention is how long a committed or rolled-back transaction id
// stays answerable as "already closed" before the janitor forgets it.
const terminalRetention = time.Hour

// Janitor periodically reports long-running transactions and prunes retired
// transaction records. It never rolls anything back on its own: an active
// transaction belongs to its caller until shutdown.
type Janitor struct {
	cron      *cron.Cron
	txm       *store.TxManager
	logger    *slog.Logger
	warnAfter time.Duration
}

// NewJanitor schedules the sweep on the given interval.
func NewJanitor(txm *store.TxManager, warnAfter time.Duration, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		txm:       txm,
		logger:    logger,
		warnAfter: warnAfter,
	}
	if _, err := j.cron.AddFunc("@every 1m", j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	now := time.Now()

	for _, info := range j.txm.Snapshot() {
		if info.State != store.TxActive && info.State != store.TxCommitFailed {
			continue
		}
		if j.warnAfter > 0 && now.Sub(info.BegunAt) > j.warnAfter {
			j.logger.Warn("long-running transaction",
				"tx_id", info.ID,
				"alias", info.Alias,
				"state", info.State.String(),
				"age", now.Sub(info.BegunAt))
		}
	}

	if pruned := j.txm.PruneTerminal(now.Add(-terminalRetention)); pruned > 0 {
		j.logger.Debug("pruned transaction records", "count", pruned)
	}
}

// cronLogger adapts the cron logger interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, cronAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, cronAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func cronAttrs(keysAndValues []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return attrs
}
