package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zonecounter/internal/dto"
	"zonecounter/internal/metrics"
	"zonecounter/internal/model"
	"zonecounter/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	status   SourceStatus
	skips    int
	captures int
	closed   bool
	err      error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Status() SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSource) setStatus(st SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *fakeSource) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skips++
	return nil
}

func (s *fakeSource) Capture(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Frame{}, s.err
	}
	s.captures++
	return Frame{Data: []byte{byte(s.captures)}, Width: frameW, Height: frameH}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) counts() (skips, captures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skips, s.captures
}

// fakeDetector returns script[i] for the i-th call.
type fakeDetector struct {
	mu     sync.Mutex
	script [][]model.Detection
	calls  int
	err    error
}

func (d *fakeDetector) Detect(ctx context.Context, frame Frame) ([]model.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if d.calls-1 < len(d.script) {
		return d.script[d.calls-1], nil
	}
	return nil, nil
}

func (d *fakeDetector) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type fakeReporter struct {
	mu   sync.Mutex
	reqs []dto.LogCountsRequest
	err  error
}

func (r *fakeReporter) LogCounts(ctx context.Context, req dto.LogCountsRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.err
}

func (r *fakeReporter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func newTestLoop(det Detector, rep CountsReporter, clock timeutil.Clock) (*Loop, *Session, *metrics.Metrics) {
	session := NewSession(SessionConfig{}, []model.Zone{centerZone("z1")})
	m := metrics.New()
	loop := NewLoop(LoopOptions{
		Session:  session,
		Detector: det,
		Reporter: rep,
		Clock:    clock,
		Metrics:  m,
	})
	return loop, session, m
}

func TestLoop_ProcessesEveryNthTick(t *testing.T) {
	src := &fakeSource{}
	det := &fakeDetector{}
	loop, _, m := newTestLoop(det, nil, timeutil.NewMockClock(t0))
	ctx := context.Background()

	ran := 0
	for i := 0; i < 9; i++ {
		if loop.Tick(ctx, src) {
			ran++
		}
	}

	skips, captures := src.counts()
	assert.Equal(t, 3, ran)
	assert.Equal(t, 3, captures)
	assert.Equal(t, 6, skips)
	assert.Equal(t, 9, loop.Frames())
	assert.Equal(t, uint64(3), m.Cycles.Load())
}

func TestLoop_DefersWhenPausedOrEnded(t *testing.T) {
	tests := []struct {
		name     string
		status   SourceStatus
		deferred bool
	}{
		{"playing", SourceStatus{}, false},
		{"paused file", SourceStatus{Paused: true}, true},
		{"ended file", SourceStatus{Ended: true}, true},
		{"paused live", SourceStatus{Paused: true, Live: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{status: tt.status}
			loop, _, m := newTestLoop(&fakeDetector{}, nil, timeutil.NewMockClock(t0))

			for i := 0; i < 3; i++ {
				loop.Tick(context.Background(), src)
			}

			if tt.deferred {
				assert.Zero(t, loop.Frames())
				assert.Equal(t, uint64(3), m.DeferredTicks.Load())
			} else {
				assert.Equal(t, 3, loop.Frames())
			}
		})
	}
}

func TestLoop_DetectorFailureSkipsCycle(t *testing.T) {
	src := &fakeSource{}
	det := &fakeDetector{err: errors.New("inference failed")}
	loop, session, m := newTestLoop(det, nil, timeutil.NewMockClock(t0))

	var cycles int
	loop.onCycle = func(CycleResult, Frame) { cycles++ }

	for i := 0; i < 3; i++ {
		loop.Tick(context.Background(), src)
	}
	assert.Equal(t, uint64(1), m.DetectorErrors.Load())
	assert.Zero(t, cycles)
	assert.Zero(t, session.Snapshot().ActiveTracks)

	det.setErr(nil)
	det.script = [][]model.Detection{nil, {personAt(0.5, 0.5)}}
	for i := 0; i < 3; i++ {
		loop.Tick(context.Background(), src)
	}
	assert.Equal(t, 1, cycles)
	assert.Equal(t, 1, session.Snapshot().ActiveTracks)
}

func TestLoop_CaptureFailureSkipsCycle(t *testing.T) {
	src := &fakeSource{err: errors.New("decode")}
	det := &fakeDetector{}
	loop, _, m := newTestLoop(det, nil, timeutil.NewMockClock(t0))

	for i := 0; i < 3; i++ {
		loop.Tick(context.Background(), src)
	}

	assert.Equal(t, uint64(1), m.CaptureErrors.Load())
	assert.Zero(t, det.calls)
}

func TestLoop_NoNewFrameIsNotAnError(t *testing.T) {
	src := &fakeSource{err: ErrNoFrame}
	loop, _, m := newTestLoop(&fakeDetector{}, nil, timeutil.NewMockClock(t0))

	for i := 0; i < 3; i++ {
		loop.Tick(context.Background(), src)
	}

	assert.Zero(t, m.CaptureErrors.Load())
}

func TestLoop_CountsEntriesAcrossCycles(t *testing.T) {
	src := &fakeSource{}
	det := &fakeDetector{script: [][]model.Detection{
		{personAt(0.1, 0.1)},
		{personAt(0.5, 0.5)},
		{personAt(0.5, 0.5)},
	}}
	clock := timeutil.NewMockClock(t0)
	loop, session, _ := newTestLoop(det, nil, clock)

	var results []CycleResult
	loop.onCycle = func(r CycleResult, _ Frame) { results = append(results, r) }

	for i := 0; i < 9; i++ {
		clock.Advance(DefaultTickInterval)
		loop.Tick(context.Background(), src)
	}

	require.Len(t, results, 3)
	assert.Len(t, results[1].Entries, 1)
	assert.Equal(t, 1, session.Snapshot().TotalEntries)
}

func TestLoop_PushCounts(t *testing.T) {
	rep := &fakeReporter{}
	loop, session, m := newTestLoop(&fakeDetector{}, rep, timeutil.NewMockClock(t0))
	session.Process([]model.Detection{personAt(0.5, 0.5)}, frameW, frameH, t0)

	loop.PushCounts(context.Background())

	require.Equal(t, 1, rep.calls())
	assert.Equal(t, map[string]dto.ZoneCount{"z1": {Current: 1, Peak: 1, Label: "Center"}}, rep.reqs[0].Counts)

	rep.err = errors.New("connection refused")
	loop.PushCounts(context.Background())
	assert.Equal(t, uint64(1), m.ReportFailures.Load())
}

func TestLoop_StartIsIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	rep := &fakeReporter{}
	loop, _, _ := newTestLoop(&fakeDetector{}, rep, clock)
	src := &fakeSource{}
	other := &fakeSource{}

	require.True(t, loop.Start(context.Background(), src, "clip.mp4"))
	assert.False(t, loop.Start(context.Background(), other, "other.mp4"))
	assert.Equal(t, Running, loop.State())
	assert.Equal(t, "clip.mp4", loop.File())

	require.Eventually(t, func() bool { return len(clock.Tickers()) == 2 }, time.Second, time.Millisecond)

	clock.Advance(DefaultReportInterval)
	require.Eventually(t, func() bool { return rep.calls() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "clip.mp4", rep.reqs[0].File)

	require.NoError(t, loop.Stop())
	assert.Equal(t, Stopped, loop.State())
	assert.Len(t, clock.Tickers(), 2, "a no-op Start must not add a report timer")
	for _, tk := range clock.Tickers() {
		assert.True(t, tk.Stopped())
	}
	assert.True(t, src.closed)
	assert.False(t, other.closed)
}

func TestLoop_StopAndRestart(t *testing.T) {
	loop, _, _ := newTestLoop(&fakeDetector{}, nil, timeutil.NewMockClock(t0))

	assert.Equal(t, Idle, loop.State())
	assert.ErrorIs(t, loop.Stop(), ErrNotRunning)

	require.True(t, loop.Start(context.Background(), &fakeSource{}, ""))
	require.NoError(t, loop.Stop())
	assert.ErrorIs(t, loop.Stop(), ErrNotRunning)

	require.True(t, loop.Start(context.Background(), &fakeSource{}, ""))
	assert.Equal(t, Running, loop.State())
	require.NoError(t, loop.Stop())
}

func TestLoop_ParentContextCancelStopsGoroutine(t *testing.T) {
	loop, _, _ := newTestLoop(&fakeDetector{}, nil, timeutil.NewMockClock(t0))
	ctx, cancel := context.WithCancel(context.Background())

	src := &fakeSource{}
	require.True(t, loop.Start(ctx, src, ""))
	cancel()

	loop.mu.Lock()
	done := loop.done
	loop.mu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop goroutine did not exit")
	}

	assert.Equal(t, Stopped, loop.State())
	src.mu.Lock()
	assert.True(t, src.closed)
	src.mu.Unlock()
	assert.ErrorIs(t, loop.Stop(), ErrNotRunning)

	next := &fakeSource{}
	require.True(t, loop.Start(context.Background(), next, ""))
	require.NoError(t, loop.Stop())
}

func TestLoop_TickAfterCancelDoesNothing(t *testing.T) {
	src := &fakeSource{}
	loop, _, _ := newTestLoop(&fakeDetector{}, nil, timeutil.NewMockClock(t0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, loop.Tick(ctx, src))
	assert.Zero(t, loop.Frames())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
}

func TestLoop_ResumeAfterPause(t *testing.T) {
	src := &fakeSource{status: SourceStatus{Paused: true}}
	loop, _, _ := newTestLoop(&fakeDetector{}, nil, timeutil.NewMockClock(t0))

	loop.Tick(context.Background(), src)
	src.setStatus(SourceStatus{})
	loop.Tick(context.Background(), src)

	assert.Equal(t, 1, loop.Frames())
}
