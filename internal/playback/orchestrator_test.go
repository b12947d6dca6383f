package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/audio"
	"github.com/breki/kozmotic/internal/sound"
)

// fakeDevice simulates playback by sleeping for the clip (or limit) length
type fakeDevice struct {
	mu      sync.Mutex
	plays   []time.Duration
	volume  float64
	closed  int
	failOn  int // 1-based play index that fails; 0 = never
	playErr error
	started chan struct{}
}

func (d *fakeDevice) Play(ctx context.Context, clip *sound.Clip, limit time.Duration) (time.Duration, error) {
	d.mu.Lock()
	n := len(d.plays) + 1
	d.mu.Unlock()

	if d.started != nil {
		select {
		case d.started <- struct{}{}:
		default:
		}
	}

	if d.failOn == n {
		return 0, d.playErr
	}

	length := clip.Duration
	if limit > 0 && limit < length {
		length = limit
	}

	t := time.NewTimer(length)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	d.mu.Lock()
	d.plays = append(d.plays, length)
	d.mu.Unlock()
	return length, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type fakeOpener struct {
	dev     *fakeDevice
	opened  int
	name    string
	openErr error
}

func (f *fakeOpener) open(name string, volume float64) (Device, error) {
	f.opened++
	f.name = name
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.dev.volume = volume
	return f.dev, nil
}

type fakeNotifier struct {
	calls []Banner
	err   error
}

func (n *fakeNotifier) Notify(title, message string) error {
	n.calls = append(n.calls, Banner{Title: title, Message: message})
	return n.err
}

func testClip(d time.Duration) *sound.Clip {
	frames := int(d * sound.ToneSampleRate / time.Second)
	return &sound.Clip{
		Source:      sound.SourceTone,
		FrequencyHz: 440,
		Format:      sound.FormatPCM,
		SampleRate:  sound.ToneSampleRate,
		Channels:    1,
		BitDepth:    16,
		Duration:    d,
		PCM:         make([]byte, frames*2),
	}
}

func dryClip(d time.Duration) *sound.Clip {
	c := testClip(d)
	c.PCM = nil
	c.DryRun = true
	return c
}

func newTestOrchestrator() (*Orchestrator, *fakeOpener) {
	op := &fakeOpener{dev: &fakeDevice{}}
	return New(op.open, nil), op
}

func params(mutate func(*Params)) Params {
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	e := apperr.As(err)
	require.Equal(t, kind, e.Kind, "unexpected error: %v", err)
	return e
}

func TestPlay_SingleRepeat(t *testing.T) {
	o, op := newTestOrchestrator()

	rec, err := o.Play(context.Background(), testClip(20*time.Millisecond), params(nil))
	require.NoError(t, err)

	assert.Equal(t, "tone", rec.Source)
	assert.Equal(t, 440.0, rec.FrequencyHz)
	assert.Equal(t, 1, rec.RepeatsRequested)
	assert.Equal(t, 1, rec.RepeatsCompleted)
	assert.Equal(t, int64(20), rec.ClipDurationMs)
	assert.Equal(t, int64(20), rec.RepeatDurationMs)
	assert.GreaterOrEqual(t, rec.ElapsedMs, int64(20))
	assert.Equal(t, "default", rec.Device)
	assert.False(t, rec.DryRun)
	assert.Equal(t, 1, op.opened)
	assert.Equal(t, 1, op.dev.closed)
	assert.Equal(t, Completed, o.State())
}

func TestPlay_RepeatsWithInterval(t *testing.T) {
	o, op := newTestOrchestrator()

	start := time.Now()
	rec, err := o.Play(context.Background(), testClip(50*time.Millisecond), params(func(p *Params) {
		p.Repeat = 3
		p.Interval = 100 * time.Millisecond
	}))
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, 3, rec.RepeatsCompleted)
	assert.Len(t, op.dev.plays, 3)
	// 3 x 50ms plus two intervals, none after the last repeat
	assert.GreaterOrEqual(t, elapsed, 350*time.Millisecond)
	assert.GreaterOrEqual(t, rec.ElapsedMs, int64(350))
	assert.Equal(t, int64(100), rec.IntervalMs)
	assert.Equal(t, 1, op.opened, "device is opened once per invocation")
}

func TestPlay_DurationCap(t *testing.T) {
	o, op := newTestOrchestrator()

	rec, err := o.Play(context.Background(), testClip(200*time.Millisecond), params(func(p *Params) {
		p.DurationCap = 10 * time.Millisecond
		p.Repeat = 2
	}))
	require.NoError(t, err)

	assert.Equal(t, int64(10), rec.RepeatDurationMs)
	assert.Equal(t, int64(10), rec.DurationCapMs)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, op.dev.plays)
}

func TestPlay_CapLongerThanClip(t *testing.T) {
	o, _ := newTestOrchestrator()

	rec, err := o.Play(context.Background(), testClip(10*time.Millisecond), params(func(p *Params) {
		p.DurationCap = time.Second
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.RepeatDurationMs)
}

func TestPlay_VolumeBoundaries(t *testing.T) {
	tests := []struct {
		volume  float64
		wantErr bool
	}{
		{1.0, false},
		{0.0, false},
		{0.5, false},
		{1.01, true},
		{-0.1, true},
	}

	for _, tt := range tests {
		o, op := newTestOrchestrator()
		rec, err := o.Play(context.Background(), testClip(time.Millisecond), params(func(p *Params) {
			p.Volume = tt.volume
		}))

		if tt.wantErr {
			e := requireKind(t, err, apperr.InvalidVolume)
			assert.Equal(t, tt.volume, e.Details["value"])
			assert.Nil(t, rec)
			assert.Zero(t, op.opened, "device must not be opened for invalid volume")
			assert.Equal(t, Failed, o.State())
		} else {
			require.NoError(t, err, "volume %v", tt.volume)
			assert.Equal(t, tt.volume, rec.Volume)
			assert.Equal(t, tt.volume, op.dev.volume)
		}
	}
}

func TestPlay_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero repeat", func(p *Params) { p.Repeat = 0 }},
		{"negative repeat", func(p *Params) { p.Repeat = -2 }},
		{"negative interval", func(p *Params) { p.Interval = -time.Millisecond }},
		{"negative cap", func(p *Params) { p.DurationCap = -time.Millisecond }},
		{"negative timeout", func(p *Params) { p.Timeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, op := newTestOrchestrator()
			_, err := o.Play(context.Background(), testClip(time.Millisecond), params(tt.mutate))
			requireKind(t, err, apperr.InvalidArgument)
			assert.Zero(t, op.opened)
		})
	}
}

func TestPlay_RejectsMissingAudio(t *testing.T) {
	o, op := newTestOrchestrator()

	_, err := o.Play(context.Background(), nil, params(nil))
	requireKind(t, err, apperr.InvalidArgument)

	_, err = o.Play(context.Background(), dryClip(time.Second), params(nil))
	requireKind(t, err, apperr.InvalidArgument)
	assert.Zero(t, op.opened)
}

func TestPlay_Timeout(t *testing.T) {
	o, op := newTestOrchestrator()

	rec, err := o.Play(context.Background(), testClip(60*time.Millisecond), params(func(p *Params) {
		p.Repeat = 100
		p.Timeout = 50 * time.Millisecond
	}))
	assert.Nil(t, rec)

	e := requireKind(t, err, apperr.Timeout)
	partial, ok := e.Partial.(*Record)
	require.True(t, ok, "partial record attached")
	assert.Equal(t, 0, partial.RepeatsCompleted)
	assert.Equal(t, 100, partial.RepeatsRequested)
	assert.Equal(t, int64(50), e.Details["limit_ms"])
	assert.Equal(t, 1, op.dev.closed, "device released on timeout")
	assert.Equal(t, Failed, o.State())
}

func TestPlay_TimeoutDuringInterval(t *testing.T) {
	o, _ := newTestOrchestrator()

	_, err := o.Play(context.Background(), testClip(10*time.Millisecond), params(func(p *Params) {
		p.Repeat = 3
		p.Interval = time.Second
		p.Timeout = 100 * time.Millisecond
	}))

	e := requireKind(t, err, apperr.Timeout)
	assert.Equal(t, 1, e.Partial.(*Record).RepeatsCompleted)
}

func TestPlay_DryRunNeverOpensDevice(t *testing.T) {
	o, op := newTestOrchestrator()

	start := time.Now()
	rec, err := o.Play(context.Background(), dryClip(50*time.Millisecond), params(func(p *Params) {
		p.DryRun = true
		p.Repeat = 3
		p.Interval = time.Second
		p.DurationCap = 20 * time.Millisecond
	}))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond, "dry run does not sleep")
	assert.Zero(t, op.opened)
	assert.True(t, rec.DryRun)
	assert.Equal(t, 3, rec.RepeatsCompleted)
	assert.Equal(t, int64(0), rec.ElapsedMs)
	// 3 x min(50ms, 20ms) + 2 x 1s
	assert.Equal(t, int64(2060), rec.EstimatedMs)
	assert.Equal(t, Completed, o.State())
}

func TestPlay_DryRunAcceptsMaterializedClip(t *testing.T) {
	o, op := newTestOrchestrator()

	rec, err := o.Play(context.Background(), testClip(30*time.Millisecond), params(func(p *Params) {
		p.DryRun = true
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(30), rec.EstimatedMs)
	assert.Zero(t, op.opened)
}

func TestPlay_DryRunEstimateSaturates(t *testing.T) {
	o, _ := newTestOrchestrator()

	rec, err := o.Play(context.Background(), dryClip(time.Second), params(func(p *Params) {
		p.DryRun = true
		p.Repeat = math.MaxInt32
		p.Interval = time.Hour
	}))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(math.MaxInt64).Milliseconds(), rec.EstimatedMs)
}

func TestEstimateArithmetic(t *testing.T) {
	clip := dryClip(50 * time.Millisecond)

	assert.Equal(t, 50*time.Millisecond, estimate(clip, Params{Repeat: 1, Interval: time.Hour}))
	assert.Equal(t, time.Duration(math.MaxInt64), estimate(clip, Params{Repeat: math.MaxInt, Interval: time.Second}))
	assert.Equal(t, time.Duration(math.MaxInt64), mulSat(time.Hour, math.MaxInt))
	assert.Equal(t, time.Duration(math.MaxInt64), addSat(math.MaxInt64-1, 2))
	assert.Equal(t, time.Duration(0), mulSat(time.Second, 0))
}

func TestPlay_DryRunStillValidates(t *testing.T) {
	o, _ := newTestOrchestrator()

	_, err := o.Play(context.Background(), dryClip(time.Second), params(func(p *Params) {
		p.DryRun = true
		p.Volume = 2
	}))
	requireKind(t, err, apperr.InvalidVolume)
}

func TestPlay_DeviceOpenError(t *testing.T) {
	op := &fakeOpener{dev: &fakeDevice{}, openErr: errors.New("audio device not found: Nope")}
	o := New(op.open, nil)

	_, err := o.Play(context.Background(), testClip(time.Millisecond), params(func(p *Params) {
		p.Device = "Nope"
	}))

	e := requireKind(t, err, apperr.PlaybackDeviceError)
	assert.Contains(t, e.Details["detail"], "not found")
	assert.Equal(t, "Nope", e.Details["device"])
	assert.Equal(t, "Nope", op.name)
	assert.Equal(t, 0, e.Partial.(*Record).RepeatsCompleted)
}

func TestPlay_UnknownDeviceListsKnownNames(t *testing.T) {
	op := &fakeOpener{dev: &fakeDevice{}, openErr: &audio.DeviceNotFoundError{
		Name:  "USB Headset",
		Known: []string{"Speakers", "HDMI"},
	}}
	o := New(op.open, nil)

	_, err := o.Play(context.Background(), testClip(time.Millisecond), params(func(p *Params) {
		p.Device = "USB Headset"
	}))

	e := requireKind(t, err, apperr.PlaybackDeviceError)
	assert.Equal(t, []string{"Speakers", "HDMI"}, e.Details["known"])
	assert.Equal(t, "USB Headset", e.Details["device"])
}

func TestPlay_DeviceErrorMidway(t *testing.T) {
	dev := &fakeDevice{failOn: 2, playErr: errors.New("device unplugged")}
	op := &fakeOpener{dev: dev}
	o := New(op.open, nil)

	_, err := o.Play(context.Background(), testClip(5*time.Millisecond), params(func(p *Params) {
		p.Repeat = 4
	}))

	e := requireKind(t, err, apperr.PlaybackDeviceError)
	assert.Equal(t, 1, e.Partial.(*Record).RepeatsCompleted)
	assert.Len(t, dev.plays, 1, "no retry after a device failure")
	assert.Equal(t, 1, dev.closed)
}

func TestPlay_Interrupted(t *testing.T) {
	dev := &fakeDevice{started: make(chan struct{}, 1)}
	op := &fakeOpener{dev: dev}
	o := New(op.open, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-dev.started
		cancel()
	}()

	_, err := o.Play(ctx, testClip(5*time.Second), params(func(p *Params) {
		p.Timeout = time.Minute
	}))

	e := requireKind(t, err, apperr.Interrupted)
	assert.Equal(t, 0, e.Partial.(*Record).RepeatsCompleted)
	assert.Equal(t, 1, dev.closed, "device released on interrupt")
}

func TestPlay_Banner(t *testing.T) {
	n := &fakeNotifier{}
	op := &fakeOpener{dev: &fakeDevice{}}
	o := New(op.open, n)

	rec, err := o.Play(context.Background(), testClip(time.Millisecond), params(func(p *Params) {
		p.Banner = &Banner{Title: "Build", Message: "done"}
	}))
	require.NoError(t, err)
	assert.True(t, rec.BannerSent)
	assert.Equal(t, []Banner{{Title: "Build", Message: "done"}}, n.calls)
}

func TestPlay_BannerFailureDoesNotFail(t *testing.T) {
	n := &fakeNotifier{err: errors.New("no notification daemon")}
	op := &fakeOpener{dev: &fakeDevice{}}
	o := New(op.open, n)

	rec, err := o.Play(context.Background(), testClip(time.Millisecond), params(func(p *Params) {
		p.Banner = &Banner{Title: "Build"}
	}))
	require.NoError(t, err)
	assert.False(t, rec.BannerSent)
}

func TestPlay_NoBannerOnDryRunOrFailure(t *testing.T) {
	n := &fakeNotifier{}
	op := &fakeOpener{dev: &fakeDevice{failOn: 1, playErr: errors.New("boom")}}
	o := New(op.open, n)
	banner := &Banner{Title: "Build"}

	_, err := o.Play(context.Background(), testClip(time.Millisecond), params(func(p *Params) { p.Banner = banner }))
	require.Error(t, err)

	_, err = o.Play(context.Background(), dryClip(time.Millisecond), params(func(p *Params) {
		p.Banner = banner
		p.DryRun = true
	}))
	require.NoError(t, err)

	assert.Empty(t, n.calls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "validating", Validating.String())
	assert.Equal(t, "dry_run", DryRunShortCircuit.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, Completed.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Playing.Terminal())
}
