// Package orchestrator composes the pipeline engine with persistence, event
// logging and metrics. Each operation loads the session, applies a pure
// transition and saves the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/agentline/internal/analytics"
	"github.com/lucasnoah/agentline/internal/checks"
	"github.com/lucasnoah/agentline/internal/config"
	appctx "github.com/lucasnoah/agentline/internal/context"
	"github.com/lucasnoah/agentline/internal/db"
	"github.com/lucasnoah/agentline/internal/deviation"
	"github.com/lucasnoah/agentline/internal/gates"
	"github.com/lucasnoah/agentline/internal/handoff"
	"github.com/lucasnoah/agentline/internal/intent"
	"github.com/lucasnoah/agentline/internal/metrics"
	"github.com/lucasnoah/agentline/internal/pipeline"
	"github.com/lucasnoah/agentline/internal/selector"
	"github.com/lucasnoah/agentline/internal/stage"
)

// Orchestrator composes pipeline lifecycle operations for one project.
type Orchestrator struct {
	store      *pipeline.Store
	manager    *stage.Manager
	handoffs   *handoff.Log
	memory     *handoff.MemoryStore
	deviations *deviation.Handler
	guard      *gates.Guard
	briefs     *appctx.Builder
	checks     *checks.Runner
	events     EventLogger
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        *config.Config
	project    string
}

// Options configures New. Zero fields select defaults; nil Git and Commands
// shell out to git and sh.
type Options struct {
	Config   *config.Config
	Events   EventLogger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Clock    func() time.Time
	Git      appctx.GitRunner
	Commands checks.CommandRunner
}

// New creates an Orchestrator over store.
func New(store *pipeline.Store, opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	events := opts.Events
	if events == nil {
		events = NopEventLogger{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := stage.NewManager(stage.Thresholds{
		PlanningScore: cfg.Thresholds.PlanningScore,
		BuildScore:    cfg.Thresholds.BuildScore,
	})
	gateCfg := gates.Config{
		PassScore:     cfg.Gates.PassScore,
		ConcernsScore: cfg.Gates.ConcernsScore,
		PlanningScore: cfg.Thresholds.PlanningScore,
		BuildScore:    cfg.Thresholds.BuildScore,
	}

	git := opts.Git
	if git == nil {
		git = &appctx.ExecGit{}
	}
	commands := opts.Commands
	if commands == nil {
		commands = &checks.ExecRunner{}
	}
	handoffs := handoff.NewLog(store.StateDir())
	memory := handoff.NewMemoryStore(store.StateDir())

	o := &Orchestrator{
		store:      store,
		manager:    manager,
		handoffs:   handoffs,
		memory:     memory,
		deviations: deviation.NewHandler(manager, cfg.Deviation.LargeImpactStages),
		guard:      gates.NewGuard(gates.New(gateCfg), cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout),
		briefs:     appctx.NewBuilder(handoffs, memory, git, manager.Thresholds()),
		checks:     checks.NewRunner(commands),
		events:     events,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		project:    filepath.Base(filepath.Clean(store.ProjectDir())),
	}
	if opts.Clock != nil {
		o.setClock(opts.Clock)
	}
	return o
}

func (o *Orchestrator) setClock(now func() time.Time) {
	o.store.SetClock(now)
	o.manager.SetClock(now)
	o.handoffs.SetClock(now)
	o.memory.SetClock(now)
	o.deviations.SetClock(now)
	o.guard.SetClock(now)
}

// Init creates the project session.
func (o *Orchestrator) Init(ctx context.Context, flavor pipeline.Flavor) (pipeline.Session, error) {
	sess, err := o.store.Init(flavor)
	if err != nil {
		return pipeline.Session{}, err
	}
	o.logEvent(ctx, "init", "", sess.Phase, string(flavor))
	o.logger.Info("session initialised", zap.String("project", o.project), zap.String("project_type", string(flavor)))
	o.observe(sess)
	return sess, nil
}

// StatusInfo holds the session with derived progress.
type StatusInfo struct {
	Session    pipeline.Session      `json:"session"`
	Progress   pipeline.Progress     `json:"progress"`
	Transition stage.TransitionCheck `json:"transition"`
}

// Status returns the session and its progress summary.
func (o *Orchestrator) Status(ctx context.Context) (*StatusInfo, error) {
	sess, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	return &StatusInfo{
		Session:    sess,
		Progress:   stage.Progress(sess),
		Transition: o.manager.CheckPhaseTransition(sess),
	}, nil
}

// RouteResult is what Route decided for a free-text request.
type RouteResult struct {
	Intent    intent.Result             `json:"intent"`
	Deviation *deviation.Detection      `json:"deviation,omitempty"`
	Impact    *deviation.ImpactAnalysis `json:"impact,omitempty"`
	Selection selector.Selection        `json:"selection"`
}

// Route classifies text, checks it for a deviation, and selects the next agent.
// Nothing is persisted.
func (o *Orchestrator) Route(ctx context.Context, text string) (*RouteResult, error) {
	sess, err := o.store.Load()
	if err != nil {
		return nil, err
	}

	res := &RouteResult{
		Intent: intent.Classify(text, intent.Context{Phase: sess.Phase, CurrentStage: sess.CurrentAgent}),
	}
	o.metrics.IntentsTotal.WithLabelValues(string(res.Intent.Intent)).Inc()

	det := deviation.DetectDeviation(text, deviation.Context{Phase: sess.Phase, CurrentStage: sess.CurrentAgent})
	if det.IsDeviation {
		res.Deviation = &det
		impact, err := o.deviations.AnalyzeDeviationImpact(det.Type, sess, deviation.DetailsFromDetection(det, text))
		if err == nil {
			res.Impact = &impact
		} else {
			o.logger.Debug("deviation impact unavailable", zap.String("type", string(det.Type)), zap.Error(err))
		}
	}

	sel, err := selector.SelectAgent(selector.Request{
		Intent:          res.Intent.Intent,
		Phase:           sess.Phase,
		CurrentStage:    sess.CurrentAgent,
		CompletedStages: sess.DoneStages(),
		Greenfield:      sess.Greenfield(),
	})
	if err != nil {
		return nil, err
	}
	res.Selection = sel

	o.logger.Debug("routed",
		zap.String("intent", string(res.Intent.Intent)),
		zap.Float64("confidence", res.Intent.Confidence),
		zap.String("agent", sel.Agent),
	)
	o.flushMetrics()
	return res, nil
}

// StartStage marks a stage in progress.
func (o *Orchestrator) StartStage(ctx context.Context, name string) (pipeline.Session, error) {
	var before pipeline.Session
	sess, err := o.store.Update(func(s pipeline.Session) (pipeline.Session, error) {
		before = s
		return o.manager.StartStage(s, name)
	})
	if err != nil {
		return pipeline.Session{}, err
	}
	o.metrics.StageEventsTotal.WithLabelValues(name, stage.HistoryStarted).Inc()
	o.logEvent(ctx, "stage_started", name, sess.Phase, "")
	o.recordPhaseChange(ctx, before, sess)
	o.logger.Info("stage started", zap.String("project", o.project), zap.String("stage", name), zap.String("phase", string(sess.Phase)))
	o.observe(sess)
	return sess, nil
}

// CompleteRequest carries a stage completion and its handoff.
type CompleteRequest struct {
	Stage   string
	Handoff handoff.Params
}

// CompleteResult reports the handoff written and the resulting transition.
type CompleteResult struct {
	Handoff     handoff.Handoff     `json:"handoff"`
	HandoffPath string              `json:"handoff_path"`
	Advance     stage.AdvanceResult `json:"advance"`
	Session     pipeline.Session    `json:"-"`
}

// CompleteStage writes the handoff for a stage and advances the pipeline.
// A handoff that fails its preconditions leaves everything untouched and
// returns a *handoff.ValidationFailure. The session transition is checked
// before the handoff is written, so a rejected completion leaves no record.
func (o *Orchestrator) CompleteStage(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	current, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	if _, err := stage.CheckCompletable(current, req.Stage); err != nil {
		return nil, err
	}

	params := req.Handoff
	params.FromStage = req.Stage
	trial, _, err := o.manager.AdvancePipeline(current, req.Stage, stage.Results{Score: params.Score, Summary: params.Summary})
	if err != nil {
		return nil, err
	}
	if err := trial.Validate(); err != nil {
		return nil, fmt.Errorf("complete %s: %w", req.Stage, err)
	}

	h, path, err := o.handoffs.Execute(params)
	if err != nil {
		return nil, err
	}

	var (
		before pipeline.Session
		adv    stage.AdvanceResult
	)
	sess, err := o.store.Update(func(s pipeline.Session) (pipeline.Session, error) {
		before = s
		next, res, err := o.manager.AdvancePipeline(s, req.Stage, stage.Results{Score: params.Score, Summary: h.Summary})
		adv = res
		return next, err
	})
	if err != nil {
		return nil, fmt.Errorf("advance after handoff %s: %w", path, err)
	}

	o.metrics.StageEventsTotal.WithLabelValues(req.Stage, stage.HistoryCompleted).Inc()
	o.logEvent(ctx, "stage_completed", req.Stage, sess.Phase, fmt.Sprintf("next_action=%s next_agent=%s", adv.NextAction, adv.NextAgent))
	o.recordPhaseChange(ctx, before, sess)
	if adv.NextAction == stage.ActionComplete {
		o.logEvent(ctx, "pipeline_completed", req.Stage, sess.Phase, "")
	}
	o.logger.Info("stage completed",
		zap.String("project", o.project),
		zap.String("stage", req.Stage),
		zap.String("next_action", adv.NextAction),
		zap.String("next_agent", adv.NextAgent),
	)
	o.observe(sess)

	return &CompleteResult{Handoff: h, HandoffPath: path, Advance: adv, Session: sess}, nil
}

// FailStage marks a stage failed.
func (o *Orchestrator) FailStage(ctx context.Context, name, reason string) (pipeline.Session, error) {
	sess, err := o.store.Update(func(s pipeline.Session) (pipeline.Session, error) {
		return o.manager.FailStage(s, name, reason)
	})
	if err != nil {
		return pipeline.Session{}, err
	}
	o.metrics.StageEventsTotal.WithLabelValues(name, stage.HistoryFailed).Inc()
	o.logEvent(ctx, "stage_failed", name, sess.Phase, reason)
	o.logger.Warn("stage failed", zap.String("project", o.project), zap.String("stage", name), zap.String("reason", reason))
	o.observe(sess)
	return sess, nil
}

// DeviateRequest asks for a deviation. Type may be empty, in which case it
// is detected from Text; Details are then derived from the detection.
type DeviateRequest struct {
	Text      string
	Type      deviation.Type
	Details   pipeline.DeviationDetails
	Confirmed bool
}

// DeviateResult reports what was detected and whether it was applied.
type DeviateResult struct {
	Detection         *deviation.Detection      `json:"detection,omitempty"`
	Impact            *deviation.ImpactAnalysis `json:"impact,omitempty"`
	Feasibility       *handoff.Feasibility      `json:"feasibility,omitempty"`
	NeedsConfirmation bool                      `json:"needs_confirmation"`
	Applied           bool                      `json:"applied"`
	Record            *pipeline.DeviationRecord `json:"record,omitempty"`
}

// Deviate detects, weighs and, when allowed, applies a deviation.
// High and medium impact deviations are only applied with Confirmed set.
func (o *Orchestrator) Deviate(ctx context.Context, req DeviateRequest) (*DeviateResult, error) {
	sess, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	res := &DeviateResult{}

	typ, details := req.Type, req.Details
	if typ == deviation.None {
		det := deviation.DetectDeviation(req.Text, deviation.Context{Phase: sess.Phase, CurrentStage: sess.CurrentAgent})
		res.Detection = &det
		if !det.IsDeviation {
			return res, nil
		}
		typ = det.Type
		details = deviation.DetailsFromDetection(det, req.Text)
	}

	impact, err := o.deviations.AnalyzeDeviationImpact(typ, sess, details)
	if err != nil {
		return nil, err
	}
	res.Impact = &impact

	if typ == deviation.Rollback {
		f, err := o.handoffs.CheckRollbackFeasibility(details.TargetStage)
		if err != nil {
			return nil, err
		}
		res.Feasibility = &f
	}

	if impact.RequiresConfirmation && !req.Confirmed {
		res.NeedsConfirmation = true
		return res, nil
	}

	var (
		before pipeline.Session
		rec    pipeline.DeviationRecord
	)
	sess, err = o.store.Update(func(s pipeline.Session) (pipeline.Session, error) {
		before = s
		next, r, err := o.deviations.ApplyDeviation(s, typ, details)
		rec = r
		return next, err
	})
	if err != nil {
		return nil, err
	}
	res.Applied = true
	res.Record = &rec

	o.metrics.DeviationsTotal.WithLabelValues(string(typ)).Inc()
	o.logEvent(ctx, "deviation", details.TargetStage, sess.Phase, fmt.Sprintf("%s %v", typ, rec.Changes))
	o.recordPhaseChange(ctx, before, sess)
	o.logger.Info("deviation applied",
		zap.String("project", o.project),
		zap.String("type", string(typ)),
		zap.Strings("changes", rec.Changes),
	)
	o.observe(sess)
	return res, nil
}

// EvaluateGate runs the gate at cp behind its circuit breaker. A FAIL on a
// completed bound stage sends that stage back for revalidation. When the
// breaker is open the error wraps gates.ErrCircuitOpen.
func (o *Orchestrator) EvaluateGate(ctx context.Context, cp gates.Checkpoint, waiver string) (gates.Result, error) {
	if _, err := gates.BoundStage(cp); err != nil {
		return gates.Result{}, err
	}
	sess, err := o.store.Load()
	if err != nil {
		return gates.Result{}, err
	}
	if err := o.loadBreakers(); err != nil {
		return gates.Result{}, err
	}
	res, evalErr := o.guard.EvaluateWith(cp, func() (gates.Evidence, error) {
		ev, err := gates.CollectEvidence(sess, o.handoffs)
		if err != nil {
			return ev, err
		}
		ev.Checks = o.runChecks(ctx, cp)
		return ev, nil
	}, waiver)
	o.metrics.SetBreakerState(string(cp), o.guard.Breaker(cp).State())
	if err := o.saveBreakers(); err != nil {
		return gates.Result{}, err
	}
	if evalErr != nil {
		if errors.Is(evalErr, gates.ErrCircuitOpen) {
			o.metrics.GateRejectionsTotal.WithLabelValues(string(cp)).Inc()
			o.logger.Warn("gate rejected by open breaker", zap.String("checkpoint", string(cp)))
			o.flushMetrics()
		}
		return gates.Result{}, evalErr
	}

	o.metrics.GateEvaluationsTotal.WithLabelValues(string(cp), string(res.Verdict)).Inc()
	if err := o.events.LogGateEvaluation(ctx, db.GateEvaluation{
		Project:    o.project,
		Checkpoint: string(cp),
		Verdict:    string(res.Verdict),
		Score:      res.Score,
		Reason:     res.Reason,
	}); err != nil {
		o.logger.Warn("gate event not recorded", zap.Error(err))
	}
	o.logger.Info("gate evaluated",
		zap.String("project", o.project),
		zap.String("checkpoint", string(cp)),
		zap.String("verdict", string(res.Verdict)),
		zap.Int("score", res.Score),
	)

	if res.Verdict == gates.Fail && sess.Agent(res.Stage).Status == pipeline.StatusCompleted {
		sess, err = o.store.Update(func(s pipeline.Session) (pipeline.Session, error) {
			return o.manager.MarkNeedsRevalidation(s, res.Stage, fmt.Sprintf("%s gate failed: %s", cp, res.Reason))
		})
		if err != nil {
			return res, err
		}
		o.metrics.StageEventsTotal.WithLabelValues(res.Stage, stage.HistoryRevalidate).Inc()
		o.logEvent(ctx, "needs_revalidation", res.Stage, sess.Phase, string(cp))
	}
	o.observe(sess)
	return res, nil
}

// HandoffContext returns the latest handoff and memory notes of a stage.
func (o *Orchestrator) HandoffContext(name string) (handoff.Context, error) {
	return o.handoffs.LoadHandoffContext(name, o.memory)
}

// RollbackCheck reports which completed stages a rollback to name would discard.
func (o *Orchestrator) RollbackCheck(name string) (handoff.Feasibility, error) {
	return o.handoffs.CheckRollbackFeasibility(name)
}

// AddNote records a durable note for a stage.
func (o *Orchestrator) AddNote(name, text string) error {
	return o.memory.Add(name, text, "cli")
}

// History returns recent pipeline events, from the event store when it can
// be queried, otherwise from the session history.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]db.PipelineEvent, error) {
	if h, ok := o.events.(eventHistory); ok {
		return h.GetPipelineHistory(ctx, o.project, limit)
	}
	sess, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	entries := sess.History
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]db.PipelineEvent, 0, len(entries))
	for _, e := range entries {
		ts, _ := time.Parse(time.RFC3339, e.Timestamp)
		out = append(out, db.PipelineEvent{Project: o.project, Event: e.Action, Stage: e.Stage, Detail: e.Detail, Timestamp: ts})
	}
	return out, nil
}

// BriefRequest selects the stage and context mode of a briefing.
type BriefRequest struct {
	Stage   string // empty selects the next stage
	Mode    appctx.FidelityMode
	Request string
}

// BriefResult is a rendered briefing and where it was saved.
type BriefResult struct {
	*appctx.BuildResult
	Path   string `json:"path"`
	Prompt string `json:"prompt"`
}

// Brief renders the briefing for a stage and saves it under briefs/.
func (o *Orchestrator) Brief(ctx context.Context, req BriefRequest) (*BriefResult, error) {
	sess, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	name := req.Stage
	if name == "" {
		name = stage.Progress(sess).NextAgent
		if name == "" {
			return nil, errors.New("pipeline is complete, no stage to brief")
		}
	}

	res, out, err := o.briefs.Render(sess, appctx.BuildOpts{
		Stage:      name,
		Mode:       req.Mode,
		Request:    req.Request,
		ProjectDir: o.store.ProjectDir(),
	}, o.store.StateDir())
	if err != nil {
		return nil, err
	}

	path := filepath.Join(o.store.StateDir(), "briefs", res.Stage+".md")
	if err := pipeline.WriteAtomic(path, []byte(out)); err != nil {
		return nil, fmt.Errorf("save briefing: %w", err)
	}
	o.logger.Debug("briefing rendered", zap.String("stage", res.Stage), zap.String("mode", string(res.Mode)))
	return &BriefResult{BuildResult: res, Path: path, Prompt: out}, nil
}

// gateStats is implemented by loggers that can aggregate gate verdicts.
type gateStats interface {
	GetGateVerdictCounts(ctx context.Context, project string) ([]db.GateVerdictCount, error)
}

// Analytics summarises the session history, adding gate pass rates when
// the event store can be queried.
func (o *Orchestrator) Analytics(ctx context.Context) (analytics.Report, error) {
	sess, err := o.store.Load()
	if err != nil {
		return analytics.Report{}, err
	}
	report := analytics.Summarize(sess)
	if gs, ok := o.events.(gateStats); ok {
		counts, err := gs.GetGateVerdictCounts(ctx, o.project)
		if err != nil {
			return report, err
		}
		report.Gates = analytics.GatePassRates(counts)
	}
	return report, nil
}

// --- Helpers ---

func (o *Orchestrator) recordPhaseChange(ctx context.Context, before, after pipeline.Session) {
	if before.Phase == after.Phase {
		return
	}
	o.metrics.PhaseTransitionsTotal.WithLabelValues(string(before.Phase), string(after.Phase)).Inc()
	o.logEvent(ctx, "phase_transition", "", after.Phase, fmt.Sprintf("from=%s", before.Phase))
	o.logger.Info("phase changed",
		zap.String("project", o.project),
		zap.String("from", string(before.Phase)),
		zap.String("to", string(after.Phase)),
	)
}

func (o *Orchestrator) logEvent(ctx context.Context, event, stageName string, phase pipeline.Phase, detail string) {
	err := o.events.LogPipelineEvent(ctx, db.PipelineEvent{
		Project: o.project,
		Event:   event,
		Stage:   stageName,
		Phase:   string(phase),
		Detail:  detail,
	})
	if err != nil {
		o.logger.Warn("pipeline event not recorded", zap.String("event", event), zap.Error(err))
	}
}

func (o *Orchestrator) observe(sess pipeline.Session) {
	o.metrics.Progress.Set(float64(stage.Progress(sess).Percent))
	o.flushMetrics()
}

func (o *Orchestrator) flushMetrics() {
	if o.cfg.Metrics.Textfile == "" {
		return
	}
	if err := o.metrics.WriteTextfile(o.cfg.Metrics.Textfile); err != nil {
		o.logger.Warn("metrics textfile not written", zap.String("path", o.cfg.Metrics.Textfile), zap.Error(err))
	}
}

func (o *Orchestrator) runChecks(ctx context.Context, cp gates.Checkpoint) []checks.Result {
	cfgs := o.cfg.ChecksFor(string(cp))
	if len(cfgs) == 0 {
		return nil
	}
	cs := make([]checks.Check, len(cfgs))
	for i, c := range cfgs {
		cs[i] = checks.Check{Name: c.Name, Command: c.Command, Parser: c.Parser, Timeout: c.Timeout, FixCommand: c.FixCommand}
	}
	results := o.checks.RunAll(ctx, o.store.ProjectDir(), cs)
	for _, r := range results {
		o.logger.Info("check finished",
			zap.String("checkpoint", string(cp)),
			zap.String("check", r.Name),
			zap.Bool("passed", r.Passed),
			zap.Bool("auto_fixed", r.AutoFixed),
			zap.Int("duration_ms", r.DurationMs),
		)
	}
	return results
}

func (o *Orchestrator) breakerPath() string {
	return filepath.Join(o.store.StateDir(), "breakers.json")
}

func (o *Orchestrator) loadBreakers() error {
	var snaps map[gates.Checkpoint]gates.BreakerSnapshot
	if err := pipeline.ReadJSON(o.breakerPath(), &snaps); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load breakers: %w", err)
	}
	return o.guard.Restore(snaps)
}

func (o *Orchestrator) saveBreakers() error {
	if err := pipeline.WriteJSON(o.breakerPath(), o.guard.Snapshot()); err != nil {
		return fmt.Errorf("save breakers: %w", err)
	}
	return nil
}
