package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID        int64
	Project   string
	Event     string
	Stage     string
	Phase     string
	Detail    string
	Timestamp time.Time
}

// GateEvaluation represents a row in the gate_evaluations table.
type GateEvaluation struct {
	ID         int64
	Project    string
	Checkpoint string
	Verdict    string
	Score      int
	Reason     string
	Timestamp  time.Time
}

// LogPipelineEvent inserts a pipeline event.
func (d *DB) LogPipelineEvent(ctx context.Context, e PipelineEvent) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO pipeline_events (project, event, stage, phase, detail) VALUES ($1, $2, $3, $4, $5)`,
		e.Project, e.Event, e.Stage, e.Phase, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// GetPipelineHistory returns the events of a project oldest first. limit <= 0 returns all.
func (d *DB) GetPipelineHistory(ctx context.Context, project string, limit int) ([]PipelineEvent, error) {
	query := `SELECT id, project, event, COALESCE(stage, ''), COALESCE(phase, ''), COALESCE(detail, ''), timestamp
		 FROM pipeline_events WHERE project = $1 ORDER BY timestamp ASC, id ASC`
	args := []any{project}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT id, project, event, COALESCE(stage, ''), COALESCE(phase, ''), COALESCE(detail, ''), timestamp
			FROM pipeline_events WHERE project = $1 ORDER BY timestamp DESC, id DESC LIMIT $2
		) recent ORDER BY timestamp ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get pipeline history: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PipelineEvent, error) {
		var e PipelineEvent
		err := row.Scan(&e.ID, &e.Project, &e.Event, &e.Stage, &e.Phase, &e.Detail, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pipeline history: %w", err)
	}
	return events, nil
}

// LogGateEvaluation inserts a gate verdict.
func (d *DB) LogGateEvaluation(ctx context.Context, g GateEvaluation) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO gate_evaluations (project, checkpoint, verdict, score, reason) VALUES ($1, $2, $3, $4, $5)`,
		g.Project, g.Checkpoint, g.Verdict, g.Score, g.Reason,
	)
	if err != nil {
		return fmt.Errorf("log gate evaluation: %w", err)
	}
	return nil
}

// GetLatestGateEvaluation returns the newest verdict for a checkpoint, or nil.
func (d *DB) GetLatestGateEvaluation(ctx context.Context, project, checkpoint string) (*GateEvaluation, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT id, project, checkpoint, verdict, score, COALESCE(reason, ''), timestamp
		 FROM gate_evaluations WHERE project = $1 AND checkpoint = $2
		 ORDER BY timestamp DESC, id DESC LIMIT 1`,
		project, checkpoint,
	)
	var g GateEvaluation
	err := row.Scan(&g.ID, &g.Project, &g.Checkpoint, &g.Verdict, &g.Score, &g.Reason, &g.Timestamp)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest gate evaluation: %w", err)
	}
	return &g, nil
}

// GateVerdictCount is the number of evaluations with one verdict at one checkpoint.
type GateVerdictCount struct {
	Checkpoint string
	Verdict    string
	Count      int
}

// GetGateVerdictCounts groups a project's gate evaluations by checkpoint and verdict.
func (d *DB) GetGateVerdictCounts(ctx context.Context, project string) ([]GateVerdictCount, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT checkpoint, verdict, COUNT(*) FROM gate_evaluations
		 WHERE project = $1 GROUP BY checkpoint, verdict ORDER BY checkpoint, verdict`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("get gate verdict counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GateVerdictCount, error) {
		var c GateVerdictCount
		err := row.Scan(&c.Checkpoint, &c.Verdict, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan gate verdict counts: %w", err)
	}
	return counts, nil
}
