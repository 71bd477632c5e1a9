package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"weavecore/internal/artifact"
	"weavecore/internal/graphbuild"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
	"weavecore/internal/planner"
	"weavecore/internal/store"
	"weavecore/internal/telemetry"
)

// Executor runs a planner.Plan layer-by-layer under bounded concurrency
// (§4.4, §5). Grounded on the teacher's internal/dag/executor.go RunParallel:
// a worker pool drains a channel of ready work, a single mutex guards all
// shared state transitions, and a layer is a hard barrier — no job in layer
// k+1 is dispatched until every job in layer k reaches a terminal status.
type Executor struct {
	Store       store.Store
	Handlers    map[string]ProducerHandler // by provider name
	Concurrency int
	FailureMode FailureMode
	MaxAttempts int
	Limiters    map[string]*rate.Limiter // optional, by provider name

	inputsSnapshot inputsSnapshotJSON

	mu       sync.Mutex
	manifest *store.Manifest
}

// New constructs an Executor bound to one movie's store and manifest-under-
// construction (seeded from planner.BuildManifestSkeleton). rateLimits
// declares a per-provider requests-per-second ceiling (§5); a provider absent
// from the map, or mapped to <= 0, runs unthrottled.
func New(st store.Store, manifest *store.Manifest, inputsSnapshot inputsSnapshotJSON, handlers map[string]ProducerHandler, concurrency int, failureMode FailureMode, rateLimits map[string]float64) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if manifest.Artefacts == nil {
		manifest.Artefacts = map[ids.ID]store.ManifestArtifactEntry{}
	}
	var limiters map[string]*rate.Limiter
	if len(rateLimits) > 0 {
		limiters = make(map[string]*rate.Limiter, len(rateLimits))
		for provider, rps := range rateLimits {
			if rps <= 0 {
				continue
			}
			limiters[provider] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	return &Executor{
		Store:          st,
		Handlers:       handlers,
		Concurrency:    concurrency,
		FailureMode:    failureMode,
		MaxAttempts:    3,
		Limiters:       limiters,
		inputsSnapshot: inputsSnapshot,
		manifest:       manifest,
	}
}

type jobResult struct {
	jobID  ids.ID
	status store.ArtifactStatus
	reason string
	attempt int
}

// Run executes every layer of plan in order, persisting ArtefactEvents and
// mutating the in-memory manifest as jobs complete, then saves the final
// manifest (§4.4 Termination).
func (e *Executor) Run(ctx context.Context, plan *planner.Plan, revision string) (*BuildSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for name, h := range e.Handlers {
		if err := h.WarmStart(ctx); err != nil {
			return nil, fmt.Errorf("executor: warm start for provider %q: %w", name, err)
		}
	}

	summary := &BuildSummary{Status: "succeeded"}
	haltedByFailure := false

	for layerIdx, layer := range plan.Layers {
		if ctx.Err() != nil {
			haltedByFailure = true
			break
		}
		if haltedByFailure {
			break
		}

		layerCtx, layerSpan := telemetry.StartLayer(ctx, layerIdx, len(layer))
		results := e.runLayer(layerCtx, layer, revision)
		layerSpan.End()
		for _, r := range results {
			switch r.status {
			case store.StatusSucceeded:
				summary.Succeeded++
			case store.StatusFailed:
				summary.Failed++
			case store.StatusSkipped:
				summary.Skipped++
			}
			summary.Jobs = append(summary.Jobs, JobOutcome{JobID: r.jobID, Status: r.status, Reason: r.reason, Attempts: r.attempt})
		}

		if e.FailureMode == FailFast {
			for _, r := range results {
				if r.status == store.StatusFailed {
					haltedByFailure = true
					break
				}
			}
		}
	}

	sort.Slice(summary.Jobs, func(i, j int) bool { return summary.Jobs[i].JobID < summary.Jobs[j].JobID })

	if summary.Failed > 0 {
		summary.Status = "failed"
	} else if haltedByFailure {
		summary.Status = "halted"
	}

	e.mu.Lock()
	m := e.manifest
	e.mu.Unlock()
	newHash, err := e.Store.SaveManifest(m, m.PreviousHash)
	if err != nil {
		return summary, err
	}
	summary.ManifestHash = newHash
	return summary, nil
}

// runLayer executes one barrier's worth of jobs with up to e.Concurrency
// workers, mirroring the teacher's workCh/doneCh worker-pool shape.
func (e *Executor) runLayer(ctx context.Context, layer planner.Layer, revision string) []jobResult {
	jobCh := make(chan planner.Job, len(layer))
	resultCh := make(chan jobResult, len(layer))

	var wg sync.WaitGroup
	workers := e.Concurrency
	if workers > len(layer) {
		workers = len(layer)
	}
	if workers == 0 {
		return nil
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resultCh <- e.runJob(ctx, job, revision)
			}
		}()
	}

	for _, job := range layer {
		jobCh <- job
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var results []jobResult
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}

// runJob executes one job's full lifecycle: condition check, input
// resolution, handler invocation with retry/backoff, and artefact
// persistence (§4.4 steps 1-6).
func (e *Executor) runJob(ctx context.Context, job planner.Job, revision string) jobResult {
	ctx, jobSpan := telemetry.StartJob(ctx, string(job.JobID), job.ProducerAlias, 0)
	defer jobSpan.End()

	if ctx.Err() != nil {
		e.recordCancelled(job, revision)
		return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: "cancelled"}
	}

	ok, err := e.jobConditionSatisfied(ctx, job)
	if err != nil {
		e.recordFailed(job, revision, 0, fmt.Sprintf("condition evaluation error: %v", err))
		return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: err.Error()}
	}
	if !ok {
		e.recordSkipped(job, revision)
		return jobResult{jobID: job.JobID, status: store.StatusSkipped, reason: "condition not met"}
	}

	resolved, err := e.resolveJobInputs(ctx, job)
	if err != nil {
		e.recordFailed(job, revision, 0, fmt.Sprintf("input resolution error: %v", err))
		return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: err.Error()}
	}

	handler, ok := e.Handlers[job.Provider]
	if !ok {
		reason := fmt.Sprintf("no handler registered for provider %q", job.Provider)
		e.recordFailed(job, revision, 0, reason)
		return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: reason}
	}

	req := ProduceRequest{
		JobID: job.JobID, Provider: job.Provider, Model: job.Model, Revision: revision,
		LayerIndex: job.LayerIndex, Inputs: job.Inputs, Produces: job.Produces,
		Context: job.Context, ResolvedInputs: resolved,
	}

	maxAttempts := e.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			e.recordCancelled(job, revision)
			return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: "cancelled", attempt: attempt}
		}
		if lim, ok := e.Limiters[job.Provider]; ok {
			if err := lim.Wait(ctx); err != nil {
				e.recordCancelled(job, revision)
				return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: "cancelled", attempt: attempt}
			}
		}

		req.Attempt = attempt
		res, invokeErr := handler.Invoke(ctx, req)
		if invokeErr == nil {
			status, reason := e.persistResult(job, revision, res)
			return jobResult{jobID: job.JobID, status: status, reason: reason, attempt: attempt}
		}

		lastErr = invokeErr
		retryable, retryAfterMs := orcherr.Retryable(invokeErr)
		if !retryable || attempt == maxAttempts {
			break
		}
		wait := time.Duration(retryAfterMs) * time.Millisecond
		if wait <= 0 {
			wait = time.Duration(attempt) * 200 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.recordCancelled(job, revision)
			return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: "cancelled", attempt: attempt}
		case <-timer.C:
		}
	}

	e.recordFailed(job, revision, maxAttempts, lastErr.Error())
	return jobResult{jobID: job.JobID, status: store.StatusFailed, reason: lastErr.Error(), attempt: maxAttempts}
}

// jobConditionSatisfied evaluates the producer-level gate against already-
// materialized upstream artifacts (§4.3.4). A condition that references an
// artifact never produced (because its own producer was skipped) is treated
// as unmet rather than a hard plan error — the layer barrier guarantees the
// artifact would exist by now if its producer had run.
func (e *Executor) jobConditionSatisfied(ctx context.Context, job planner.Job) (bool, error) {
	cond, ok := job.Context.InputConditions["_producer"]
	if !ok {
		return true, nil
	}
	resolver := func(id ids.ID) (artifact.Value, bool, error) { return e.resolveValue(ctx, id) }
	ok2, err := graphbuild.EvaluateCondition(&cond, resolver)
	if err != nil {
		var pe *orcherr.PlanError
		if errors.As(err, &pe) && pe.Code == "UnknownConditionArtifact" {
			return false, nil
		}
		return false, err
	}
	return ok2, nil
}

func (e *Executor) resolveJobInputs(ctx context.Context, job planner.Job) (map[string]artifact.Value, error) {
	out := make(map[string]artifact.Value, len(job.Context.InputBindings)+len(job.Context.FanIn))
	for name, id := range job.Context.InputBindings {
		v, ok, err := e.resolveValue(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[name] = v
	}
	for name, fi := range job.Context.FanIn {
		out[name] = artifact.Value{Kind: artifact.KindFanIn, FanIn: e.buildFanInSequence(ctx, fi.Members)}
	}
	return out, nil
}

// persistResult stores each succeeded blob, appends ArtefactEvents for
// every produces entry (failing any expected artefact the handler omitted
// with reason "missing_output"), and applies the events to the in-memory
// manifest (§4.4 steps 4-5).
func (e *Executor) persistResult(job planner.Job, revision string, res ProduceResult) (store.ArtifactStatus, string) {
	byID := make(map[ids.ID]ProducedArtifact, len(res.Artefacts))
	for _, a := range res.Artefacts {
		byID[a.ArtefactID] = a
	}

	now := nowStamp()
	overallStatus := store.StatusSucceeded
	reason := ""

	for _, want := range job.Produces {
		got, ok := byID[want]
		ev := store.ArtifactEvent{ArtefactID: want, Revision: revision, InputsHash: job.InputsHash, ProducedBy: job.JobID, CreatedAt: now}

		switch {
		case !ok:
			ev.Status = store.StatusFailed
			ev.Reason = "missing_output"
			overallStatus = store.StatusFailed
			reason = "missing_output"
		case got.Status == store.StatusSucceeded && got.Blob != nil:
			ref, err := e.Store.PutBlob(got.Blob.Data, got.Blob.MimeType)
			if err != nil {
				ev.Status = store.StatusFailed
				ev.Reason = err.Error()
				overallStatus = store.StatusFailed
				reason = err.Error()
				break
			}
			ev.Status = store.StatusSucceeded
			ev.Blob = &ref
		default:
			ev.Status = store.StatusFailed
			ev.Reason = got.Diagnostics
			overallStatus = store.StatusFailed
			reason = got.Diagnostics
		}

		e.applyEvent(ev)
	}
	return overallStatus, reason
}

func (e *Executor) recordSkipped(job planner.Job, revision string) {
	now := nowStamp()
	for _, want := range job.Produces {
		e.applyEvent(store.ArtifactEvent{ArtefactID: want, Revision: revision, InputsHash: job.InputsHash, Status: store.StatusSkipped, ProducedBy: job.JobID, CreatedAt: now})
	}
}

func (e *Executor) recordFailed(job planner.Job, revision string, attempt int, reason string) {
	now := nowStamp()
	for _, want := range job.Produces {
		e.applyEvent(store.ArtifactEvent{ArtefactID: want, Revision: revision, InputsHash: job.InputsHash, Status: store.StatusFailed, Reason: reason, ProducedBy: job.JobID, CreatedAt: now})
	}
}

func (e *Executor) recordCancelled(job planner.Job, revision string) {
	now := nowStamp()
	for _, want := range job.Produces {
		e.applyEvent(store.ArtifactEvent{ArtefactID: want, Revision: revision, InputsHash: job.InputsHash, Status: store.StatusFailed, Reason: "cancelled", ProducedBy: job.JobID, CreatedAt: now})
	}
}

func (e *Executor) applyEvent(ev store.ArtifactEvent) {
	_ = e.Store.AppendArtefactEvent(ev)
	e.mu.Lock()
	e.manifest.ApplyEvent(ev)
	e.mu.Unlock()
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }
