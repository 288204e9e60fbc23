package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// Outcome summarizes how a turn ended.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCancelled Outcome = "cancelled"
)

// Observer records per-turn errors and outcomes, including turns that end
// silently.
type Observer interface {
	StageFailed(sessionID string, stage Stage, err error)
	TurnFinished(sessionID string, outcome Outcome, elapsed time.Duration)
}

// LogObserver writes observations to a zap logger.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an Observer backed by log.
func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log.Named("turn")}
}

func (o *LogObserver) StageFailed(sessionID string, stage Stage, err error) {
	level := zap.WarnLevel
	if stage == StageDecode {
		level = zap.DebugLevel
	}
	o.log.Log(level, "stage failed",
		zap.String("session_id", sessionID),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
}

func (o *LogObserver) TurnFinished(sessionID string, outcome Outcome, elapsed time.Duration) {
	o.log.Info("turn finished",
		zap.String("session_id", sessionID),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", elapsed),
	)
}
