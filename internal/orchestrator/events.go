package orchestrator

import (
	"context"

	"github.com/lucasnoah/agentline/internal/db"
)

// EventLogger receives a copy of every persisted pipeline event. *db.DB
// implements it; NopEventLogger discards.
type EventLogger interface {
	LogPipelineEvent(ctx context.Context, e db.PipelineEvent) error
	LogGateEvaluation(ctx context.Context, g db.GateEvaluation) error
}

// eventHistory is implemented by loggers that can read events back.
type eventHistory interface {
	GetPipelineHistory(ctx context.Context, project string, limit int) ([]db.PipelineEvent, error)
}

// NopEventLogger drops every event.
type NopEventLogger struct{}

func (NopEventLogger) LogPipelineEvent(context.Context, db.PipelineEvent) error   { return nil }
func (NopEventLogger) LogGateEvaluation(context.Context, db.GateEvaluation) error { return nil }
