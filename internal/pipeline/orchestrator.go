package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/tourcast/tourcast/app/observability/metrics"
	"github.com/tourcast/tourcast/internal/assemble"
	"github.com/tourcast/tourcast/internal/audio"
	"github.com/tourcast/tourcast/internal/cache"
	"github.com/tourcast/tourcast/internal/geocode"
	"github.com/tourcast/tourcast/internal/places"
	"github.com/tourcast/tourcast/internal/script"
	"github.com/tourcast/tourcast/internal/types"
)

// transitions is the stage machine. An event missing from a state's row is
// an illegal transition and ends the run as a system failure.
var transitions = map[types.RunState]map[types.StageEvent]types.RunState{
	types.StateReceived: {
		types.EventStart: types.StateLocating,
		types.EventAbort: types.StateFailed,
	},
	types.StateLocating: {
		types.EventLocated:     types.StateFetchingPlaces,
		types.EventStageFailed: types.StateFailed,
	},
	types.StateFetchingPlaces: {
		types.EventPlacesFetched: types.StateGeneratingSegments,
		types.EventStageFailed:   types.StateFailed,
	},
	types.StateGeneratingSegments: {
		types.EventSegmentsDone: types.StateAssembling,
		types.EventStageFailed:  types.StateFailed,
	},
	types.StateAssembling: {
		types.EventAssembled:   types.StateReady,
		types.EventStageFailed: types.StateFailed,
	},
	types.StateRetrying: {
		types.EventStart: types.StateLocating,
		types.EventAbort: types.StateFailed,
	},
}

// stageOrder ranks the stages a checkpoint can record, so a resumed run
// knows which outputs are already settled.
var stageOrder = map[types.RunState]int{
	types.StateReceived:           0,
	types.StateLocating:           1,
	types.StateFetchingPlaces:     2,
	types.StateGeneratingSegments: 3,
	types.StateAssembling:         4,
}

// Params are the orchestrator's tunables.
type Params struct {
	MaxAttempts       int
	CallTimeout       time.Duration
	ScriptConcurrency int64
	AudioConcurrency  int64
	CacheTTL          time.Duration
}

// Deps are the collaborators a run needs, one per stage plus persistence.
type Deps struct {
	Fingerprinter *Fingerprinter
	Resolver      geocode.Resolver
	Retriever     places.Retriever
	Scripts       script.Generator
	TTS           audio.Provider
	Assets        audio.AssetStore
	Assembler     *assemble.Assembler
	Repo          Repository
	Cache         *cache.Manager
	Metrics       *metrics.AppMetrics
}

// TourHandle is a caller's subscription to an in-flight run. Every caller
// that submits the same fingerprint while the run is alive gets the same
// handle; the single build fans its result out to all of them.
type TourHandle struct {
	Fingerprint string
	done        chan struct{}
	tour        *types.Tour
	err         error
}

// Done is closed when the run reaches a terminal state.
func (h *TourHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or the caller's context expires. The
// run itself keeps going when the caller gives up.
func (h *TourHandle) Wait(ctx context.Context) (*types.Tour, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.tour, h.err
	}
}

// Result returns the outcome after Done is closed.
func (h *TourHandle) Result() (*types.Tour, error) { return h.tour, h.err }

// Orchestrator owns the run lifecycle: admission, dedup, stage execution,
// checkpointing, retry and resume. At most one run per fingerprint is alive
// at any moment.
type Orchestrator struct {
	logger  *slog.Logger
	params  Params
	deps    Deps
	backoff *Backoff

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]*TourHandle
	states  map[string]types.RunState
}

func NewOrchestrator(params Params, deps Deps, backoff *Backoff, logger *slog.Logger) *Orchestrator {
	if params.MaxAttempts < 1 {
		params.MaxAttempts = 3
	}
	if params.CallTimeout <= 0 {
		params.CallTimeout = 45 * time.Second
	}
	if params.ScriptConcurrency < 1 {
		params.ScriptConcurrency = 4
	}
	if params.AudioConcurrency < 1 {
		params.AudioConcurrency = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:  logger,
		params:  params,
		deps:    deps,
		backoff: backoff,
		baseCtx: ctx,
		cancel:  cancel,
		running: make(map[string]*TourHandle),
		states:  make(map[string]types.RunState),
	}
}

// Shutdown cancels all in-flight runs and waits for them to checkpoint and
// exit. Interrupted runs resume on the next startup.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}

// Submit is the single entry point for tour requests. It returns either a
// finished tour (cache or store hit) or a handle to the run building it.
// Concurrent submissions of the same fingerprint join the existing run.
func (o *Orchestrator) Submit(ctx context.Context, req types.TourRequest) (*types.Tour, *TourHandle, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, nil, err
	}
	fingerprint := o.deps.Fingerprinter.Fingerprint(req)

	l := o.logger.With(slog.String("component", "Orchestrator"), slog.String("fingerprint", fingerprint))
	if o.deps.Metrics != nil {
		o.deps.Metrics.TourRequestsTotal.Add(ctx, 1)
	}

	if tour, ok := o.deps.Cache.Lookup(fingerprint); ok {
		if o.deps.Metrics != nil {
			o.deps.Metrics.CacheHitsTotal.Add(ctx, 1)
		}
		l.DebugContext(ctx, "cache hit")
		return tour, nil, nil
	}

	tour, err := o.deps.Repo.GetTourByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, nil, err
	}
	if tour != nil {
		o.deps.Cache.Store(fingerprint, tour, o.params.CacheTTL)
		l.DebugContext(ctx, "tour loaded from store")
		return tour, nil, nil
	}

	handle, created := o.joinOrCreate(fingerprint)
	if !created {
		l.DebugContext(ctx, "joined in-flight run")
		return nil, handle, nil
	}

	if err := o.deps.Repo.UpsertRun(ctx, fingerprint, req); err != nil {
		o.release(fingerprint)
		o.finish(handle, nil, err, time.Time{})
		return nil, nil, err
	}

	l.InfoContext(ctx, "run started")
	o.wg.Add(1)
	go o.execute(handle, req, nil)
	return nil, handle, nil
}

// Retry restarts a FAILED run from its last checkpoint. Joining semantics
// match Submit: if a run is already alive for the fingerprint, the caller
// gets its handle.
func (o *Orchestrator) Retry(ctx context.Context, fingerprint string) (*TourHandle, error) {
	o.mu.Lock()
	if h, ok := o.running[fingerprint]; ok {
		o.mu.Unlock()
		return h, nil
	}
	o.mu.Unlock()

	rec, err := o.deps.Repo.GetRun(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no run recorded for fingerprint %s", fingerprint)
	}
	if rec.State != types.StateFailed {
		return nil, fmt.Errorf("run is %s, only FAILED runs can be retried", rec.State)
	}

	handle, created := o.joinOrCreate(fingerprint)
	if !created {
		return handle, nil
	}
	o.logger.InfoContext(ctx, "run retried",
		slog.String("component", "Orchestrator"),
		slog.String("fingerprint", fingerprint),
		slog.Int("attempt", rec.Attempt+1))
	o.wg.Add(1)
	go o.execute(handle, rec.Request, rec)
	return handle, nil
}

// Refresh rebuilds the tour for a fingerprint whose cache entry is near
// expiry. The run starts from scratch, so the rebuilt tour replaces the
// stored one when it completes. Joining semantics match Submit.
func (o *Orchestrator) Refresh(ctx context.Context, fingerprint string) (*TourHandle, error) {
	rec, err := o.deps.Repo.GetRun(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no run recorded for fingerprint %s", fingerprint)
	}

	handle, created := o.joinOrCreate(fingerprint)
	if !created {
		return handle, nil
	}
	if err := o.deps.Repo.UpsertRun(ctx, fingerprint, rec.Request); err != nil {
		o.release(fingerprint)
		o.finish(handle, nil, err, time.Time{})
		return nil, err
	}

	o.logger.InfoContext(ctx, "run refreshed",
		slog.String("component", "Orchestrator"),
		slog.String("fingerprint", fingerprint))
	o.wg.Add(1)
	go o.execute(handle, rec.Request, nil)
	return handle, nil
}

// ResumeInterrupted restarts every run the previous process left in a
// non-terminal state. Called once at startup, before the server accepts
// traffic.
func (o *Orchestrator) ResumeInterrupted(ctx context.Context) error {
	records, err := o.deps.Repo.ListResumable(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		rec := records[i]
		handle, created := o.joinOrCreate(rec.Fingerprint)
		if !created {
			continue
		}
		o.logger.Info("resuming interrupted run",
			slog.String("fingerprint", rec.Fingerprint),
			slog.String("state", string(rec.State)))
		o.wg.Add(1)
		go o.execute(handle, rec.Request, &rec)
	}
	return nil
}

// Tour returns the finished tour for a fingerprint, consulting the cache
// first and falling back to the store. Nil when no tour exists yet.
func (o *Orchestrator) Tour(ctx context.Context, fingerprint string) (*types.Tour, error) {
	if tour, ok := o.deps.Cache.Lookup(fingerprint); ok {
		return tour, nil
	}
	tour, err := o.deps.Repo.GetTourByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if tour != nil {
		o.deps.Cache.Store(fingerprint, tour, o.params.CacheTTL)
	}
	return tour, nil
}

// Status reports the externally visible state for a fingerprint: the live
// in-memory state when a run is in flight, otherwise whatever was
// persisted.
func (o *Orchestrator) Status(ctx context.Context, fingerprint string) (*types.StatusRecord, error) {
	o.mu.Lock()
	if state, ok := o.states[fingerprint]; ok {
		o.mu.Unlock()
		return &types.StatusRecord{
			Fingerprint: fingerprint,
			State:       state,
			LastUpdated: time.Now().UTC(),
		}, nil
	}
	o.mu.Unlock()

	rec, err := o.deps.Repo.GetRun(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &types.StatusRecord{
		Fingerprint: fingerprint,
		State:       rec.State,
		Degraded:    rec.Degraded,
		LastUpdated: rec.UpdatedAt,
		Error:       rec.LastError,
	}, nil
}

func (o *Orchestrator) joinOrCreate(fingerprint string) (*TourHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.running[fingerprint]; ok {
		return h, false
	}
	h := &TourHandle{Fingerprint: fingerprint, done: make(chan struct{})}
	o.running[fingerprint] = h
	o.states[fingerprint] = types.StateReceived
	return h, true
}

func (o *Orchestrator) release(fingerprint string) {
	o.mu.Lock()
	delete(o.running, fingerprint)
	delete(o.states, fingerprint)
	o.mu.Unlock()
}

func (o *Orchestrator) setState(fingerprint string, state types.RunState) {
	o.mu.Lock()
	o.states[fingerprint] = state
	o.mu.Unlock()
}

func (o *Orchestrator) finish(h *TourHandle, tour *types.Tour, err error, start time.Time) {
	h.tour = tour
	h.err = err
	close(h.done)
	if o.deps.Metrics != nil && !start.IsZero() {
		o.deps.Metrics.RunDurationSeconds.Record(o.baseCtx, time.Since(start).Seconds())
	}
}

func (o *Orchestrator) execute(h *TourHandle, req types.TourRequest, rec *RunRecord) {
	defer o.wg.Done()
	start := time.Now()
	fingerprint := h.Fingerprint

	ctx, span := otel.Tracer("Orchestrator").Start(o.baseCtx, "ExecuteRun", trace.WithAttributes(
		attribute.String("fingerprint", fingerprint),
	))
	defer span.End()

	tour, err := o.runStages(ctx, fingerprint, req, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		if o.deps.Metrics != nil {
			o.deps.Metrics.RunsFailedTotal.Add(ctx, 1)
		}
	} else {
		span.SetStatus(codes.Ok, "run completed")
		if o.deps.Metrics != nil {
			o.deps.Metrics.RunsCompletedTotal.Add(ctx, 1)
			if tour.Degraded {
				o.deps.Metrics.RunsDegradedTotal.Add(ctx, 1)
			}
		}
	}

	o.release(fingerprint)
	o.finish(h, tour, err, start)
}

func (o *Orchestrator) runStages(ctx context.Context, fingerprint string, req types.TourRequest, rec *RunRecord) (*types.Tour, error) {
	l := o.logger.With(slog.String("component", "Orchestrator"), slog.String("fingerprint", fingerprint))

	cp := types.Checkpoint{Stage: types.StateReceived}
	attempt := 0
	state := types.StateReceived
	if rec != nil {
		if rec.Checkpoint != nil {
			cp = *rec.Checkpoint
		}
		attempt = rec.Attempt + 1
		state = types.StateRetrying
		if err := o.deps.Repo.UpdateRunState(ctx, fingerprint, state, attempt, false, ""); err != nil {
			return nil, err
		}
	}

	state, err := o.advance(ctx, fingerprint, state, types.EventStart, attempt)
	if err != nil {
		return nil, err
	}

	// Shutdown is checked before every dispatch. An interrupted run keeps
	// its persisted non-terminal state and resumes on the next startup.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// LOCATING
	var loc types.Location
	if stageOrder[cp.Stage] >= stageOrder[types.StateLocating] && cp.Location != nil {
		loc = *cp.Location
		l.DebugContext(ctx, "location restored from checkpoint")
	} else {
		err = withRetry(ctx, o.backoff, o.params.MaxAttempts, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, o.params.CallTimeout)
			defer cancel()
			var rerr error
			loc, rerr = o.deps.Resolver.Resolve(cctx, req)
			return rerr
		}, o.onRetry(ctx, l, "geolocation"))
		if err != nil {
			return nil, o.fail(ctx, fingerprint, state, attempt, err)
		}
		cp.Stage = types.StateLocating
		cp.Location = &loc
		if err := o.deps.Repo.SaveCheckpoint(ctx, fingerprint, cp); err != nil {
			return nil, o.fail(ctx, fingerprint, state, attempt, err)
		}
	}
	state, err = o.advance(ctx, fingerprint, state, types.EventLocated, attempt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// FETCHING_PLACES
	var pois []types.PointOfInterest
	if stageOrder[cp.Stage] >= stageOrder[types.StateFetchingPlaces] && len(cp.POIs) > 0 {
		pois = cp.POIs
		l.DebugContext(ctx, "points of interest restored from checkpoint", slog.Int("count", len(pois)))
	} else {
		err = withRetry(ctx, o.backoff, o.params.MaxAttempts, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, o.params.CallTimeout)
			defer cancel()
			var rerr error
			pois, rerr = o.deps.Retriever.Retrieve(cctx, loc, req)
			return rerr
		}, o.onRetry(ctx, l, "places"))
		if err != nil {
			return nil, o.fail(ctx, fingerprint, state, attempt, err)
		}
		cp.Stage = types.StateFetchingPlaces
		cp.POIs = pois
		if err := o.deps.Repo.SaveCheckpoint(ctx, fingerprint, cp); err != nil {
			return nil, o.fail(ctx, fingerprint, state, attempt, err)
		}
	}
	state, err = o.advance(ctx, fingerprint, state, types.EventPlacesFetched, attempt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// GENERATING_SEGMENTS
	segments := o.generateSegments(ctx, l, fingerprint, req, pois, cp.Segments)
	// Segments aborted by shutdown are discarded, not checkpointed as failed.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp.Stage = types.StateGeneratingSegments
	cp.Segments = segments
	if err := o.deps.Repo.SaveCheckpoint(ctx, fingerprint, cp); err != nil {
		return nil, o.fail(ctx, fingerprint, state, attempt, err)
	}
	state, err = o.advance(ctx, fingerprint, state, types.EventSegmentsDone, attempt)
	if err != nil {
		return nil, err
	}

	// ASSEMBLING
	tour, err := o.deps.Assembler.Assemble(ctx, fingerprint, req, pois, segments)
	if err != nil {
		return nil, o.fail(ctx, fingerprint, state, attempt, err)
	}
	if err := o.deps.Repo.SaveTour(ctx, tour); err != nil {
		return nil, o.fail(ctx, fingerprint, state, attempt, err)
	}
	o.deps.Cache.Store(fingerprint, tour, o.params.CacheTTL)

	state, err = o.advance(ctx, fingerprint, state, types.EventAssembled, attempt)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Repo.UpdateRunState(ctx, fingerprint, state, attempt, tour.Degraded, ""); err != nil {
		l.ErrorContext(ctx, "failed to persist terminal state", slog.Any("error", err))
	}

	l.InfoContext(ctx, "run completed",
		slog.Int("segments", len(tour.Segments)),
		slog.Bool("degraded", tour.Degraded))
	return tour, nil
}

// generateSegments fans one worker out per POI, bounded separately for
// script and audio calls. A POI that fails permanently yields a failed
// segment and never aborts the others.
func (o *Orchestrator) generateSegments(ctx context.Context, l *slog.Logger, fingerprint string, req types.TourRequest, pois []types.PointOfInterest, previous []types.Segment) []types.Segment {
	prior := make(map[string]types.Segment, len(previous))
	for _, seg := range previous {
		prior[seg.POIID] = seg
	}

	slotSeconds := req.DurationMinutes * 60
	if len(pois) > 0 {
		slotSeconds /= len(pois)
	}

	scriptSem := semaphore.NewWeighted(o.params.ScriptConcurrency)
	audioSem := semaphore.NewWeighted(o.params.AudioConcurrency)

	results := make([]types.Segment, len(pois))
	var wg sync.WaitGroup
	for i, poi := range pois {
		if prev, ok := prior[poi.ID]; ok && prev.Status == types.SegmentAudioDone && o.deps.Assets.Exists(ctx, prev.AudioAssetRef) {
			results[i] = prev
			continue
		}
		wg.Add(1)
		go func(i int, poi types.PointOfInterest, prev types.Segment) {
			defer wg.Done()
			results[i] = o.buildSegment(ctx, l, fingerprint, req, poi, prev, slotSeconds, scriptSem, audioSem)
		}(i, poi, prior[poi.ID])
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) buildSegment(ctx context.Context, l *slog.Logger, fingerprint string, req types.TourRequest, poi types.PointOfInterest, prev types.Segment, slotSeconds int, scriptSem, audioSem *semaphore.Weighted) types.Segment {
	seg := types.Segment{
		POIID:    poi.ID,
		POIName:  poi.Name,
		Position: poi.Position,
		Status:   types.SegmentScriptPending,
	}

	// Reuse a checkpointed script so a resumed run never pays for the same
	// narration twice.
	if prev.POIID == poi.ID && prev.ScriptText != "" {
		seg.ScriptText = prev.ScriptText
		seg.EstimatedDurationSeconds = prev.EstimatedDurationSeconds
		seg.Status = types.SegmentScriptDone
	} else {
		if err := scriptSem.Acquire(ctx, 1); err != nil {
			return failedSegment(seg, err)
		}
		err := withRetry(ctx, o.backoff, o.params.MaxAttempts, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, o.params.CallTimeout)
			defer cancel()
			text, rerr := o.deps.Scripts.GenerateScript(cctx, poi, req, slotSeconds)
			if rerr != nil {
				return rerr
			}
			seg.ScriptText = text
			return nil
		}, o.onRetry(ctx, l, "gemini"))
		scriptSem.Release(1)
		if err != nil {
			if o.deps.Metrics != nil {
				o.deps.Metrics.SegmentFailuresTotal.Add(ctx, 1)
			}
			l.WarnContext(ctx, "segment script failed",
				slog.String("poi_id", poi.ID), slog.Any("error", err))
			return failedSegment(seg, err)
		}
		seg.EstimatedDurationSeconds = script.EstimateSeconds(seg.ScriptText)
		seg.Status = types.SegmentScriptDone
	}

	seg.Status = types.SegmentAudioPending
	if err := audioSem.Acquire(ctx, 1); err != nil {
		return failedSegment(seg, err)
	}
	err := withRetry(ctx, o.backoff, o.params.MaxAttempts, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, o.params.CallTimeout)
		defer cancel()
		data, rerr := o.deps.TTS.Synthesize(cctx, seg.ScriptText, req.Language)
		if rerr != nil {
			return rerr
		}
		ref, rerr := o.deps.Assets.Put(cctx, fingerprint, poi.ID, data)
		if rerr != nil {
			return rerr
		}
		seg.AudioAssetRef = ref
		return nil
	}, o.onRetry(ctx, l, "tts"))
	audioSem.Release(1)
	if err != nil {
		if o.deps.Metrics != nil {
			o.deps.Metrics.SegmentFailuresTotal.Add(ctx, 1)
		}
		l.WarnContext(ctx, "segment audio failed",
			slog.String("poi_id", poi.ID), slog.Any("error", err))
		return failedSegment(seg, err)
	}

	seg.Status = types.SegmentAudioDone
	return seg
}

func failedSegment(seg types.Segment, err error) types.Segment {
	seg.Status = types.SegmentFailed
	seg.FailureReason = err.Error()
	return seg
}

// advance moves the run through the transition table and persists the new
// state.
func (o *Orchestrator) advance(ctx context.Context, fingerprint string, from types.RunState, event types.StageEvent, attempt int) (types.RunState, error) {
	row, ok := transitions[from]
	if !ok {
		return from, &types.SystemFailure{Op: "stage transition", Err: fmt.Errorf("no transitions from %s", from)}
	}
	to, ok := row[event]
	if !ok {
		return from, &types.SystemFailure{Op: "stage transition", Err: fmt.Errorf("event %s not valid in %s", event, from)}
	}
	o.setState(fingerprint, to)
	if !to.Terminal() {
		if err := o.deps.Repo.UpdateRunState(ctx, fingerprint, to, attempt, false, ""); err != nil {
			o.logger.ErrorContext(ctx, "failed to persist state transition",
				slog.String("fingerprint", fingerprint),
				slog.String("state", string(to)),
				slog.Any("error", err))
		}
	}
	return to, nil
}

// fail records the terminal failure and returns the original error. A run
// cut short by shutdown is not a failure: it keeps its non-terminal state
// so ResumeInterrupted picks it up.
func (o *Orchestrator) fail(ctx context.Context, fingerprint string, from types.RunState, attempt int, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	if _, err := o.advance(ctx, fingerprint, from, types.EventStageFailed, attempt); err != nil {
		o.logger.ErrorContext(ctx, "invalid failure transition",
			slog.String("fingerprint", fingerprint), slog.Any("error", err))
	}
	if err := o.deps.Repo.UpdateRunState(ctx, fingerprint, types.StateFailed, attempt, false, cause.Error()); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist FAILED state",
			slog.String("fingerprint", fingerprint), slog.Any("error", err))
	}
	return cause
}

func (o *Orchestrator) onRetry(ctx context.Context, l *slog.Logger, provider string) func(int, error) {
	return func(attempt int, err error) {
		if o.deps.Metrics != nil {
			o.deps.Metrics.ProviderRetriesTotal.Add(ctx, 1)
		}
		l.WarnContext(ctx, "provider call retried",
			slog.String("provider", provider),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
}
