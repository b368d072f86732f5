package app

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/calibration"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/decision"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/feedback"
	"github.com/alanyoungcy/arbengine/internal/ingest"
	"github.com/alanyoungcy/arbengine/internal/intent"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/pipeline"
	"github.com/alanyoungcy/arbengine/internal/simulation"
	"github.com/alanyoungcy/arbengine/internal/state"
)

// Engine holds every pipeline stage built for one run.
type Engine struct {
	State        *state.Store
	Ingestor     *ingest.Ingestor
	Registry     *arbitrage.Registry
	Queue        *arbitrage.CandidateQueue
	Detector     *arbitrage.Detector
	Simulator    *simulation.Engine
	Calibration  *calibration.Store
	Decision     *decision.Engine
	Builder      *intent.Builder
	Feedback     *feedback.Loop
	Checkpointer *pipeline.Checkpointer
	Archiver     *pipeline.Archiver
	Alerts       *notify.HealthAlerts
	Orchestrator *pipeline.Orchestrator

	// Chains lists every chain an enabled strategy may trade on.
	Chains []domain.Chain
}

// EngineIO are the mode-specific edges of the pipeline. Every field is
// optional; a nil Clock uses the wall clock and a nil Sink logs intents.
type EngineIO struct {
	Clock    func() time.Time
	Sources  []domain.FeatureSource
	Receipts domain.ReceiptSource
	Sink     domain.IntentSink
}

// BuildEngine constructs the stages from cfg and the strategy documents and
// connects them to whatever deps provides.
func BuildEngine(cfg *config.Config, strategies map[string]domain.StrategyConfig, deps *Dependencies, io EngineIO, logger *slog.Logger) (*Engine, error) {
	if deps == nil {
		deps = &Dependencies{}
	}
	clock := io.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	e := &Engine{Chains: approvedChains(strategies)}

	var onHealth state.HealthTransitionFunc
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		e.Alerts = notify.NewHealthAlerts(deps.Notifier, 0, logger)
		onHealth = e.Alerts.Hook
	}

	e.State = state.New(state.Config{
		MaxAge:             cfg.State.MaxAge.Duration,
		Capacity:           cfg.State.Capacity,
		Clock:              clock,
		OnHealthTransition: onHealth,
	}, logger)

	e.Ingestor = ingest.New(ingest.Config{
		Shards:      cfg.Ingest.Shards,
		ShardBuffer: cfg.Ingest.ShardBuffer,
	}, e.State, logger)

	e.Registry = arbitrage.NewRegistryFromConfig(strategies, arbitrage.BuildOptions{
		Confidence:   cfg.Detector.Confidence,
		MaxTriangles: cfg.Detector.MaxTriangles,
	}, logger)
	e.Queue = arbitrage.NewCandidateQueue(cfg.Detector.QueueCapacity, logger)
	e.Detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		Registry:             e.Registry,
		State:                e.State,
		Queue:                e.Queue,
		Interval:             cfg.Detector.Interval.Duration,
		MaxCandidatesPerPass: cfg.Detector.MaxCandidatesPerPass,
		Logger:               logger,
	})

	simCfg := simulation.DefaultConfig()
	simCfg.DefaultNotionalUSD = cfg.Simulation.DefaultNotionalUSD
	simCfg.MinSizeUSD = cfg.Simulation.MinSizeUSD
	simCfg.MaxSizeUSD = cfg.Simulation.MaxSizeUSD
	simCfg.RefineSteps = cfg.Simulation.RefineSteps
	simCfg.MaxSnapshotAge = cfg.Simulation.MaxSnapshotAge.Duration
	simCfg.Timeout = cfg.Simulation.Timeout.Duration
	simCfg.CapitalCostAPR = cfg.Simulation.CapitalCostAPR
	simCfg.DefaultNativeAsset = cfg.Simulation.NativeAsset
	simCfg.Strategies = strategies
	simCfg.Clock = clock
	e.Simulator = simulation.New(simCfg, logger)

	e.Calibration = calibration.NewStore(nil, cfg.Feedback.DefaultSuccessRate)

	book := decision.NewExposureBook()
	e.Decision = decision.New(decision.Config{
		Policy:       cfg.RiskPolicy(strategies),
		Health:       e.State,
		Invalidation: e.State,
		Book:         book,
	}, logger)

	ids := intent.RandomIDs()
	if cfg.Intent.IDSeed != "" {
		ids = intent.SeededIDs(cfg.Intent.IDSeed)
	}
	e.Builder = intent.NewBuilder(intent.Config{
		TTL:               cfg.Intent.TTL.Duration,
		DegradedTTLFactor: cfg.Intent.DegradedTTLFactor,
		Clock:             clock,
		IDs:               ids,
		Health:            e.State,
	}, logger)

	e.Feedback = feedback.New(feedback.Config{
		Capacity:      cfg.Feedback.Capacity,
		Retention:     cfg.Feedback.Retention.Duration,
		SweepInterval: cfg.Feedback.SweepInterval.Duration,
		Tuning: calibration.Tuning{
			Alpha:          cfg.Feedback.Alpha,
			MaxStep:        cfg.Feedback.MaxStep,
			MinCoefficient: cfg.Feedback.MinCoefficient,
			MaxCoefficient: cfg.Feedback.MaxCoefficient,
		},
		Clock: clock,
	}, e.Calibration, book, deps.IntentStore, logger)

	if len(deps.CalibrationCaches) > 0 {
		e.Checkpointer = pipeline.NewCheckpointer(e.Calibration, cfg.Pipeline.CheckpointInterval.Duration, logger, deps.CalibrationCaches...)
	}
	if deps.Archiver != nil {
		arch, err := pipeline.NewArchiver(deps.Archiver, cfg.Pipeline.ArchiveCron, cfg.Pipeline.ArchiveLookback.Duration, logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		if deps.LockManager != nil {
			arch = arch.WithLock(deps.LockManager, 0)
		}
		e.Archiver = arch
	}

	e.Orchestrator = pipeline.NewOrchestrator(pipeline.Stages{
		Ingestor:     e.Ingestor,
		Sources:      io.Sources,
		State:        e.State,
		Detector:     e.Detector,
		Queue:        e.Queue,
		Simulator:    e.Simulator,
		Calibration:  e.Calibration,
		Decision:     e.Decision,
		Builder:      e.Builder,
		Sink:         io.Sink,
		Feedback:     e.Feedback,
		Receipts:     io.Receipts,
		Intents:      deps.IntentStore,
		Audit:        deps.AuditStore,
		Checkpointer: e.Checkpointer,
		Archiver:     e.Archiver,
	}, pipeline.Config{
		SimWorkers:       cfg.Simulation.Workers,
		ResultBuffer:     cfg.Pipeline.ResultBuffer,
		DecisionInterval: cfg.Decision.Interval.Duration,
		Clock:            clock,
	}, logger)

	logger.Info("engine built",
		slog.Any("strategies", e.Registry.List()),
		slog.Int("chains", len(e.Chains)),
		slog.Bool("checkpoints", e.Checkpointer != nil),
		slog.Bool("archiver", e.Archiver != nil),
	)
	return e, nil
}

// Status collects the runtime counters served by the ops API.
func (e *Engine) Status() any {
	status := map[string]any{
		"pipeline":  e.Orchestrator.Stats(),
		"ingest":    e.Ingestor.Stats(),
		"state":     e.State.Stats(),
		"decision":  e.Decision.Stats(),
		"feedback":  e.Feedback.Performance(),
		"queue_len": e.Queue.Len(),
		"exposure":  e.Decision.Book().Totals(),
	}
	if e.Alerts != nil {
		status["health_alerts_dropped"] = e.Alerts.Dropped()
	}
	return status
}

// approvedChains returns the sorted union of the chains enabled strategies
// may trade on.
func approvedChains(strategies map[string]domain.StrategyConfig) []domain.Chain {
	seen := make(map[domain.Chain]bool)
	for _, s := range strategies {
		if !s.Enabled {
			continue
		}
		for _, ch := range s.ApprovedChains {
			seen[ch] = true
		}
	}
	out := make([]domain.Chain, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
