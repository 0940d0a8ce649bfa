package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourcast/tourcast/internal/assemble"
	"github.com/tourcast/tourcast/internal/cache"
	"github.com/tourcast/tourcast/internal/types"
)

// memRepo is an in-memory Repository for orchestrator tests.
type memRepo struct {
	mu    sync.Mutex
	runs  map[string]*RunRecord
	tours map[string]*types.Tour
}

func newMemRepo() *memRepo {
	return &memRepo{runs: make(map[string]*RunRecord), tours: make(map[string]*types.Tour)}
}

func (r *memRepo) UpsertRun(_ context.Context, fingerprint string, req types.TourRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[fingerprint]; !ok {
		r.runs[fingerprint] = &RunRecord{Fingerprint: fingerprint, Request: req, State: types.StateReceived}
	}
	return nil
}

func (r *memRepo) UpdateRunState(_ context.Context, fingerprint string, state types.RunState, attempt int, degraded bool, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[fingerprint]
	if !ok {
		rec = &RunRecord{Fingerprint: fingerprint}
		r.runs[fingerprint] = rec
	}
	rec.State = state
	rec.Attempt = attempt
	rec.Degraded = degraded
	rec.LastError = lastError
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) SaveCheckpoint(_ context.Context, fingerprint string, cp types.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.runs[fingerprint]; ok {
		snapshot := cp
		rec.Checkpoint = &snapshot
	}
	return nil
}

func (r *memRepo) GetRun(_ context.Context, fingerprint string) (*RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) ListResumable(_ context.Context) ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RunRecord
	for _, rec := range r.runs {
		if !rec.State.Terminal() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memRepo) SaveTour(_ context.Context, tour *types.Tour) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tours[tour.Fingerprint] = tour
	return nil
}

func (r *memRepo) GetTourByFingerprint(_ context.Context, fingerprint string) (*types.Tour, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tours[fingerprint], nil
}

func (r *memRepo) state(fingerprint string) types.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.runs[fingerprint]; ok {
		return rec.State
	}
	return ""
}

// Stage stubs with call counters.
type stubResolver struct {
	calls int32
	fn    func(types.TourRequest) (types.Location, error)
}

func (s *stubResolver) Resolve(_ context.Context, req types.TourRequest) (types.Location, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(req)
}

type stubRetriever struct {
	calls int32
	fn    func() ([]types.PointOfInterest, error)
}

func (s *stubRetriever) Retrieve(_ context.Context, _ types.Location, _ types.TourRequest) ([]types.PointOfInterest, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn()
}

type stubScripts struct {
	calls int32
	fn    func(ctx context.Context, poi types.PointOfInterest) (string, error)
}

func (s *stubScripts) GenerateScript(ctx context.Context, poi types.PointOfInterest, _ types.TourRequest, _ int) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(ctx, poi)
}

type stubTTS struct {
	calls int32
	fn    func(text string) ([]byte, error)
}

func (s *stubTTS) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(text)
}

type memAssets struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemAssets() *memAssets {
	return &memAssets{data: make(map[string][]byte)}
}

func (a *memAssets) Put(_ context.Context, fingerprint, poiID string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ref := "tours/" + fingerprint + "/" + poiID + ".audio"
	a.data[ref] = data
	return ref, nil
}

func (a *memAssets) Get(_ context.Context, ref string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data[ref], nil
}

func (a *memAssets) Exists(_ context.Context, ref string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.data[ref]
	return ok
}

func goodScript() string {
	return strings.TrimSpace(strings.Repeat("word ", 200))
}

func goodAudio() []byte {
	return []byte(strings.Repeat("a", 4096))
}

func defaultPOIs() []types.PointOfInterest {
	return []types.PointOfInterest{
		{ID: "p1", Name: "First", Category: types.CategoryHistory, Position: 0},
		{ID: "p2", Name: "Second", Category: types.CategoryHistory, Position: 1},
		{ID: "p3", Name: "Third", Category: types.CategoryHistory, Position: 2},
	}
}

type testEnv struct {
	orch      *Orchestrator
	repo      *memRepo
	resolver  *stubResolver
	retriever *stubRetriever
	scripts   *stubScripts
	tts       *stubTTS
	assets    *memAssets
	cache     *cache.Manager
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		repo: newMemRepo(),
		resolver: &stubResolver{fn: func(req types.TourRequest) (types.Location, error) {
			return types.Location{Lat: req.Lat, Lon: req.Lon}, nil
		}},
		retriever: &stubRetriever{fn: func() ([]types.PointOfInterest, error) {
			return defaultPOIs(), nil
		}},
		scripts: &stubScripts{fn: func(context.Context, types.PointOfInterest) (string, error) {
			return goodScript(), nil
		}},
		tts: &stubTTS{fn: func(string) ([]byte, error) {
			return goodAudio(), nil
		}},
		assets: newMemAssets(),
		cache:  cache.NewManager(time.Hour, logger),
	}
	env.orch = NewOrchestrator(
		Params{MaxAttempts: 3, CallTimeout: 5 * time.Second, ScriptConcurrency: 2, AudioConcurrency: 2, CacheTTL: time.Hour},
		Deps{
			Fingerprinter: NewFingerprinter(0.002, 15),
			Resolver:      env.resolver,
			Retriever:     env.retriever,
			Scripts:       env.scripts,
			TTS:           env.tts,
			Assets:        env.assets,
			Assembler:     assemble.NewAssembler(20, logger),
			Repo:          env.repo,
			Cache:         env.cache,
		},
		NewBackoff(time.Millisecond, 5*time.Millisecond),
		logger,
	)
	return env
}

func submitRequest() types.TourRequest {
	return types.TourRequest{
		Lat:             48.8584,
		Lon:             2.2945,
		RadiusMeters:    1000,
		DurationMinutes: 60,
		Categories:      []types.Category{types.CategoryHistory},
		Language:        "en",
		Mode:            types.ModeAuthenticated,
	}
}

func TestOrchestrator_BuildsTour(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	tour, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	require.Nil(t, tour)
	require.NotNil(t, handle)

	tour, err = handle.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, tour)
	assert.Equal(t, types.TourReady, tour.OverallStatus)
	assert.False(t, tour.Degraded)
	assert.Len(t, tour.Segments, 3)
	for _, seg := range tour.Segments {
		assert.Equal(t, types.SegmentAudioDone, seg.Status)
		assert.True(t, env.assets.Exists(ctx, seg.AudioAssetRef))
	}
	assert.Equal(t, types.StateReady, env.repo.state(handle.Fingerprint))

	// Second submission is a pure cache hit.
	cached, handle2, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	assert.Nil(t, handle2)
	require.NotNil(t, cached)
	assert.Equal(t, tour.ID, cached.ID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&env.resolver.calls))
}

func TestOrchestrator_ConcurrentSubmitsShareOneRun(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	gate := make(chan struct{})
	env.scripts.fn = func(_ context.Context, _ types.PointOfInterest) (string, error) {
		<-gate
		return goodScript(), nil
	}

	const callers = 8
	handles := make([]*TourHandle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, h, err := env.orch.Submit(ctx, submitRequest())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	close(gate)

	var tours []*types.Tour
	for _, h := range handles {
		require.NotNil(t, h)
		tour, err := h.Wait(ctx)
		require.NoError(t, err)
		tours = append(tours, tour)
	}
	for _, tour := range tours[1:] {
		assert.Equal(t, tours[0].ID, tour.ID)
	}
	// One build for everyone: one resolve, one retrieve, one script per POI.
	assert.EqualValues(t, 1, atomic.LoadInt32(&env.resolver.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&env.retriever.calls))
	assert.EqualValues(t, 3, atomic.LoadInt32(&env.scripts.calls))
}

func TestOrchestrator_PartialFailureDegradesTour(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	env.tts.fn = func(text string) ([]byte, error) {
		return goodAudio(), nil
	}
	env.scripts.fn = func(_ context.Context, poi types.PointOfInterest) (string, error) {
		if poi.ID == "p2" {
			return "", &types.PermanentExternalError{Provider: "gemini", Reason: "unusable script"}
		}
		return goodScript(), nil
	}

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	tour, err := handle.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.TourReady, tour.OverallStatus)
	assert.True(t, tour.Degraded)
	assert.Len(t, tour.Segments, 2)
	require.Len(t, tour.DroppedPOIs, 1)
	assert.Equal(t, "p2", tour.DroppedPOIs[0].POIID)
	assert.Equal(t, types.StateReady, env.repo.state(handle.Fingerprint))
}

func TestOrchestrator_AllSegmentsFailedFailsRun(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	env.scripts.fn = func(_ context.Context, _ types.PointOfInterest) (string, error) {
		return "", &types.PermanentExternalError{Provider: "gemini", Reason: "unusable script"}
	}

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	tour, err := handle.Wait(ctx)
	require.ErrorIs(t, err, types.ErrNoUsableSegments)
	assert.Nil(t, tour)
	assert.Equal(t, types.StateFailed, env.repo.state(handle.Fingerprint))
}

func TestOrchestrator_TransientFailuresRetried(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	var attempts int32
	env.resolver.fn = func(req types.TourRequest) (types.Location, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return types.Location{}, &types.TransientExternalError{Provider: "places", Err: assert.AnError}
		}
		return types.Location{Lat: req.Lat, Lon: req.Lon}, nil
	}

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	tour, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.TourReady, tour.OverallStatus)
	assert.EqualValues(t, 3, atomic.LoadInt32(&env.resolver.calls))
}

func TestOrchestrator_TransientExhaustionFailsRun(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	env.retriever.fn = func() ([]types.PointOfInterest, error) {
		return nil, &types.TransientExternalError{Provider: "places", Err: assert.AnError}
	}

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
	assert.Equal(t, types.StateFailed, env.repo.state(handle.Fingerprint))
	assert.EqualValues(t, 3, atomic.LoadInt32(&env.retriever.calls))
}

func TestOrchestrator_RetryResumesFromCheckpoint(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	req := submitRequest()
	fingerprint := env.orch.deps.Fingerprinter.Fingerprint(req)

	// Seed a FAILED run whose checkpoint already carries the location, the
	// POIs, and two finished segments with their audio in the store.
	loc := types.Location{Lat: req.Lat, Lon: req.Lon}
	pois := defaultPOIs()
	ref1, err := env.assets.Put(ctx, fingerprint, "p1", goodAudio())
	require.NoError(t, err)
	ref2, err := env.assets.Put(ctx, fingerprint, "p2", goodAudio())
	require.NoError(t, err)
	require.NoError(t, env.repo.UpsertRun(ctx, fingerprint, req))
	require.NoError(t, env.repo.SaveCheckpoint(ctx, fingerprint, types.Checkpoint{
		Stage:    types.StateGeneratingSegments,
		Location: &loc,
		POIs:     pois,
		Segments: []types.Segment{
			{POIID: "p1", POIName: "First", Position: 0, ScriptText: goodScript(), EstimatedDurationSeconds: 80, Status: types.SegmentAudioDone, AudioAssetRef: ref1},
			{POIID: "p2", POIName: "Second", Position: 1, ScriptText: goodScript(), EstimatedDurationSeconds: 80, Status: types.SegmentAudioDone, AudioAssetRef: ref2},
			{POIID: "p3", POIName: "Third", Position: 2, Status: types.SegmentFailed, FailureReason: "tts: status 503"},
		},
	}))
	require.NoError(t, env.repo.UpdateRunState(ctx, fingerprint, types.StateFailed, 1, false, "tts: status 503"))

	handle, err := env.orch.Retry(ctx, fingerprint)
	require.NoError(t, err)
	tour, err := handle.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, types.TourReady, tour.OverallStatus)
	assert.Len(t, tour.Segments, 3)
	// Completed stages were not recomputed, and only the failed segment was
	// rebuilt.
	assert.EqualValues(t, 0, atomic.LoadInt32(&env.resolver.calls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&env.retriever.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&env.scripts.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&env.tts.calls))
}

func TestOrchestrator_RetryRejectsUnknownAndLiveRuns(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	_, err := env.orch.Retry(ctx, "no-such-fingerprint")
	require.Error(t, err)

	// A READY run is not retryable.
	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.NoError(t, err)
	_, err = env.orch.Retry(ctx, handle.Fingerprint)
	require.Error(t, err)
}

func TestOrchestrator_ShutdownKeepsRunResumable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	started := make(chan struct{}, len(defaultPOIs()))
	env.scripts.fn = func(ctx context.Context, _ types.PointOfInterest) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	<-started // run is inside GENERATING_SEGMENTS

	env.orch.Shutdown()

	_, err = handle.Wait(ctx)
	require.Error(t, err)

	// The interrupted run published nothing.
	_, ok := env.cache.Lookup(handle.Fingerprint)
	assert.False(t, ok)
	tour, err := env.repo.GetTourByFingerprint(ctx, handle.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, tour)

	// Its persisted state stayed non-terminal, so the next process picks
	// it up at startup.
	assert.False(t, env.repo.state(handle.Fingerprint).Terminal())
	records, err := env.repo.ListResumable(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, handle.Fingerprint, records[0].Fingerprint)
	// Completed stages survived in the checkpoint for the resume.
	rec, err := env.repo.GetRun(ctx, handle.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, rec.Checkpoint)
	assert.Equal(t, types.StateFetchingPlaces, rec.Checkpoint.Stage)
	assert.Len(t, rec.Checkpoint.POIs, 3)
}

func TestOrchestrator_RefreshRebuildsFromScratch(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	first, err := handle.Wait(ctx)
	require.NoError(t, err)

	refreshHandle, err := env.orch.Refresh(ctx, handle.Fingerprint)
	require.NoError(t, err)
	rebuilt, err := refreshHandle.Wait(ctx)
	require.NoError(t, err)

	// A refresh runs the whole pipeline again and replaces the stored tour.
	assert.NotEqual(t, first.ID, rebuilt.ID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&env.resolver.calls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&env.retriever.calls))

	cached, ok := env.cache.Lookup(handle.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, rebuilt.ID, cached.ID)

	_, err = env.orch.Refresh(ctx, "no-such-fingerprint")
	require.Error(t, err)
}

func TestOrchestrator_ValidationRejectedBeforeRun(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()

	req := submitRequest()
	req.DurationMinutes = 0
	_, _, err := env.orch.Submit(context.Background(), req)
	require.Error(t, err)
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.EqualValues(t, 0, atomic.LoadInt32(&env.resolver.calls))
}

func TestOrchestrator_StatusReporting(t *testing.T) {
	env := newTestEnv()
	defer env.orch.Shutdown()
	ctx := context.Background()

	status, err := env.orch.Status(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, status)

	_, handle, err := env.orch.Submit(ctx, submitRequest())
	require.NoError(t, err)
	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	status, err = env.orch.Status(ctx, handle.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, types.StateReady, status.State)
}
