// Package run wires the planner, store and executor into one invocation:
// load blueprint/inputs/prior manifest, build a plan, execute it, persist
// the plan and a per-run log file (§6.1's runs/<timestamp>/plan.json and
// logs/<timestamp>.jsonl), matching the teacher's internal/cli/executor.go
// role of translating one canonical invocation into engine execution, but
// against the planner/store/executor trio instead of a single dag.Executor.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"weavecore/internal/blueprint"
	"weavecore/internal/catalog"
	"weavecore/internal/clock"
	"weavecore/internal/config"
	"weavecore/internal/executor"
	"weavecore/internal/graphbuild"
	"weavecore/internal/ids"
	"weavecore/internal/metrics"
	"weavecore/internal/obslog"
	"weavecore/internal/planner"
	"weavecore/internal/provider/anthropic"
	"weavecore/internal/provider/openai"
	"weavecore/internal/provider/simulated"
	"weavecore/internal/store"
	"weavecore/internal/telemetry"
)

// Result is what one invocation reports back to its caller (cmd/weavecore
// or a test), beyond what the executor's own BuildSummary carries.
type Result struct {
	RunID      string
	Revision   string
	Plan       *planner.Plan
	Summary    *executor.BuildSummary
	DryRun     bool
	CostsOnly  bool
	JobCount   int
	TotalJobs  int
	LogPath    string
	PlanPath   string
}

// dimsFile is the optional cardinalities sidecar (§4.3.1/§4.2 step 1):
// Loop feeds planner.Cardinalities (LoopHint.Over path -> length), Leaves
// feeds graphbuild.Build's per-producer schema-array cardinalities.
type dimsFile struct {
	Loop   map[string]int            `json:"loop"`
	Leaves map[string]map[string]int `json:"leaves"`
}

// Execute runs one full plan-then-build cycle for cfg.
func Execute(ctx context.Context, cfg *config.Configuration, clk clock.Clock) (*Result, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	runID := uuid.NewString()
	revision := uuid.NewString()

	movieDir := filepath.Join(cfg.Storage.Root, cfg.Storage.BasePath, cfg.MovieID)
	fileStore, err := store.NewFileStore(cfg.Storage.Root, cfg.Storage.BasePath, cfg.MovieID)
	if err != nil {
		return nil, fmt.Errorf("run: opening store: %w", err)
	}
	var st store.Store = fileStore
	if cfg.RedisAddr != "" {
		st = store.NewRedisBlobCache(st, redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.RedisTTLSeconds)
	}
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("run: connecting to mongo: %w", err)
		}
		coll := mongoClient.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		st = &store.CompositeStore{Store: st, Manifest: store.NewMongoManifestStore(coll, cfg.MovieID)}
	}

	ts := clk.Now().UTC().Format("20060102T150405.000000000Z")
	logPath := filepath.Join(movieDir, "logs", ts+".jsonl")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("run: creating log file: %w", err)
	}
	defer logFile.Close()
	obslog.Configure(io.MultiWriter(os.Stderr, logFile), logrus.InfoLevel)
	logger := obslog.Run("run", cfg.MovieID, runID)
	logger.Info("run starting")

	ctx, rootSpan := telemetry.StartRun(ctx, cfg.MovieID, runID)
	defer rootSpan.End()

	bp, err := loadBlueprint(cfg.BlueprintPath)
	if err != nil {
		logger.WithError(err).Error("blueprint load failed")
		return nil, err
	}
	inputsSnapshot, err := loadInputsSnapshot(cfg.InputsPath)
	if err != nil {
		logger.WithError(err).Error("inputs load failed")
		return nil, err
	}
	dims, err := loadDims(cfg.DimsPath)
	if err != nil {
		logger.WithError(err).Error("dims load failed")
		return nil, err
	}

	cat, err := catalog.Load(cfg.CatalogRoot)
	if err != nil {
		logger.WithError(err).Error("catalog load failed")
		return nil, err
	}
	for i := range bp.Producers {
		if err := cat.ApplyDefaults(&bp.Producers[i]); err != nil {
			logger.WithError(err).Error("catalog default application failed")
			return nil, err
		}
	}

	graph, err := graphbuild.Build(bp, dims.Leaves)
	if err != nil {
		logger.WithError(err).Error("graph build failed")
		return nil, err
	}

	prior, err := st.LoadManifest()
	if err != nil {
		logger.WithError(err).Error("manifest load failed")
		return nil, err
	}

	selections := buildSelections(bp, cfg.Mode)

	var overrideArtifact *ids.ID
	if cfg.Run.TargetArtifactID != "" {
		id := ids.ID(cfg.Run.TargetArtifactID)
		overrideArtifact = &id
	}

	if err := recordInputEvents(st, clk, inputsSnapshot, overrideArtifact); err != nil {
		logger.WithError(err).Error("input event recording failed")
		return nil, err
	}

	opts := planner.Options{
		UpToLayer:  cfg.Run.UpToLayer,
		ReRunFrom:  cfg.Run.ReRunFrom,
		ArtifactID: overrideArtifact,
	}

	pr, err := planner.Plan(bp, graph, planner.Cardinalities(dims.Loop), inputsSnapshot, selections, prior, overrideArtifact, opts, revision)
	if err != nil {
		logger.WithError(err).Error("plan build failed")
		return nil, err
	}
	logger.WithField("layers", len(pr.Plan.Layers)).WithField("jobs", len(pr.Plan.AllJobs())).Info("plan built")

	planPath, err := persistPlan(movieDir, ts, pr.Plan)
	if err != nil {
		logger.WithError(err).Error("plan persistence failed")
		return nil, err
	}

	res := &Result{
		RunID:     runID,
		Revision:  revision,
		Plan:      pr.Plan,
		DryRun:    cfg.Run.DryRun,
		CostsOnly: cfg.Run.CostsOnly,
		JobCount:  len(pr.Plan.AllJobs()),
		TotalJobs: len(pr.AllJobs),
		LogPath:   logPath,
		PlanPath:  planPath,
	}

	if cfg.Run.DryRun || cfg.Run.CostsOnly {
		logger.Info("dry-run/costs-only: skipping execution")
		return res, nil
	}

	handlers, err := buildHandlers(cfg, movieDir)
	if err != nil {
		logger.WithError(err).Error("handler setup failed")
		return nil, err
	}

	reg := metrics.New()
	reg.RecordDirtySetRatio(len(pr.AllJobs), len(pr.Plan.AllJobs()))

	rateLimits := map[string]float64{
		"anthropic": cfg.AnthropicRPS,
		"openai":    cfg.OpenAIRPS,
	}
	exec := executor.New(st, pr.NextManifest, inputsSnapshot, handlers, cfg.Concurrency, executor.FailureMode(cfg.FailureMode), rateLimits)
	summary, err := exec.Run(ctx, pr.Plan, revision)
	if summary != nil {
		for _, j := range summary.Jobs {
			reg.RecordJob(string(j.Status))
		}
	}
	if err != nil {
		logger.WithError(err).Error("executor run failed")
		return res, err
	}
	res.Summary = summary
	logger.WithFields(logrus.Fields{
		"status":    summary.Status,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("run finished")
	return res, nil
}

func loadBlueprint(path string) (*blueprint.BlueprintTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("run: reading blueprint %s: %w", path, err)
	}
	var bp blueprint.BlueprintTree
	if err := json.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("run: parsing blueprint %s: %w", path, err)
	}
	return &bp, nil
}

func loadInputsSnapshot(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("run: reading inputs %s: %w", path, err)
	}
	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("run: parsing inputs %s: %w", path, err)
	}
	return snapshot, nil
}

func loadDims(path string) (dimsFile, error) {
	if path == "" {
		return dimsFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return dimsFile{}, fmt.Errorf("run: reading dims %s: %w", path, err)
	}
	var d dimsFile
	if err := json.Unmarshal(data, &d); err != nil {
		return dimsFile{}, fmt.Errorf("run: parsing dims %s: %w", path, err)
	}
	return d, nil
}

// recordInputEvents appends one InputEvent per resolved input to the
// InputEvents stream at plan time, plus a synthetic override event when this
// run targets a leaf-artifact override for surgical re-execution (§3, §4.1
// appendInputEvent, §4.3.7 step 5).
func recordInputEvents(st store.Store, clk clock.Clock, inputsSnapshot map[string]json.RawMessage, overrideArtifact *ids.ID) error {
	now := clk.Now().UTC().Format(time.RFC3339Nano)

	names := make([]string, 0, len(inputsSnapshot))
	for name := range inputsSnapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ev := store.InputEvent{InputID: ids.NewInput(name), Value: inputsSnapshot[name], CreatedAt: now}
		if err := st.AppendInputEvent(ev); err != nil {
			return fmt.Errorf("run: recording input event for %q: %w", name, err)
		}
	}

	if overrideArtifact != nil {
		ev := store.InputEvent{InputID: *overrideArtifact, Override: true, CreatedAt: now}
		if err := st.AppendInputEvent(ev); err != nil {
			return fmt.Errorf("run: recording override input event: %w", err)
		}
	}
	return nil
}

// buildSelections binds every declared producer to its execution handler:
// in simulated mode every producer routes to the stub handler regardless of
// its declared provider, so a blueprint authored against live providers can
// still be dry-run end to end without credentials.
func buildSelections(bp *blueprint.BlueprintTree, mode config.Mode) []store.ProducerSelection {
	selections := make([]store.ProducerSelection, 0, len(bp.Producers))
	for _, p := range bp.Producers {
		provider, model := p.Provider, p.Model
		if mode == config.ModeSimulated {
			provider, model = "simulated", ""
		}
		selections = append(selections, store.ProducerSelection{Alias: p.Alias, Provider: provider, Model: model})
	}
	return selections
}

func buildHandlers(cfg *config.Configuration, movieDir string) (map[string]executor.ProducerHandler, error) {
	handlers := map[string]executor.ProducerHandler{
		"simulated": simulated.New(),
	}
	if cfg.Mode != config.ModeLive {
		return handlers, nil
	}
	promptsRoot := filepath.Join(movieDir, "prompts")
	if cfg.AnthropicAPIKey != "" {
		handlers["anthropic"] = anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel).WithPromptsRoot(promptsRoot)
	}
	if cfg.OpenAIAPIKey != "" {
		handlers["openai"] = openai.NewFromAPIKey(cfg.OpenAIAPIKey, cfg.OpenAIModel).WithPromptsRoot(promptsRoot)
	}
	return handlers, nil
}

func persistPlan(movieDir, ts string, plan *planner.Plan) (string, error) {
	dir := filepath.Join(movieDir, "runs", ts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("run: creating run dir: %w", err)
	}
	path := filepath.Join(dir, "plan.json")
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("run: marshaling plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("run: writing plan: %w", err)
	}
	return path, nil
}
