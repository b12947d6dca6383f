// Package playback drives a resolved clip through the output device:
// parameter validation, repeats with intervals, duration caps, the overall
// timeout and cancellation.
package playback

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/audio"
	"github.com/breki/kozmotic/internal/logging"
	"github.com/breki/kozmotic/internal/sound"
)

// errTimeout is the cause attached to the timeout context
var errTimeout = errors.New("playback timeout exceeded")

// Device plays one clip at a time. Play blocks until the clip ends, limit
// (if positive) is reached or ctx is done, and returns how much was played.
type Device interface {
	Play(ctx context.Context, clip *sound.Clip, limit time.Duration) (time.Duration, error)
	Close() error
}

// DeviceOpener acquires an output device by name ("" = system default)
type DeviceOpener func(name string, volume float64) (Device, error)

// Notifier posts a desktop banner
type Notifier interface {
	Notify(title, message string) error
}

// Banner is the desktop banner posted after a successful playback
type Banner struct {
	Title   string
	Message string
}

// Params are the delivery parameters of one invocation
type Params struct {
	Volume      float64
	Repeat      int
	Interval    time.Duration
	DurationCap time.Duration // 0 = play the whole clip
	Timeout     time.Duration // 0 = no limit
	DryRun      bool
	Device      string
	Banner      *Banner
}

// DefaultParams returns full volume, one repeat and no limits
func DefaultParams() Params {
	return Params{
		Volume: 1.0,
		Repeat: 1,
	}
}

// Record is the result of one invocation. Failed invocations attach the
// record built so far to their error.
type Record struct {
	Source           string  `json:"source" yaml:"source" toml:"source"`
	Preset           string  `json:"preset,omitempty" yaml:"preset,omitempty" toml:"preset,omitempty"`
	FrequencyHz      float64 `json:"frequency_hz,omitempty" yaml:"frequency_hz,omitempty" toml:"frequency_hz,omitempty"`
	File             string  `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
	Format           string  `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	RepeatsRequested int     `json:"repeats_requested" yaml:"repeats_requested" toml:"repeats_requested"`
	RepeatsCompleted int     `json:"repeats_completed" yaml:"repeats_completed" toml:"repeats_completed"`
	ClipDurationMs   int64   `json:"clip_duration_ms" yaml:"clip_duration_ms" toml:"clip_duration_ms"`
	RepeatDurationMs int64   `json:"repeat_duration_ms" yaml:"repeat_duration_ms" toml:"repeat_duration_ms"`
	IntervalMs       int64   `json:"interval_ms" yaml:"interval_ms" toml:"interval_ms"`
	DurationCapMs    int64   `json:"duration_cap_ms,omitempty" yaml:"duration_cap_ms,omitempty" toml:"duration_cap_ms,omitempty"`
	TimeoutMs        int64   `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" toml:"timeout_ms,omitempty"`
	Volume           float64 `json:"volume" yaml:"volume" toml:"volume"`
	ElapsedMs        int64   `json:"elapsed_ms" yaml:"elapsed_ms" toml:"elapsed_ms"`
	EstimatedMs      int64   `json:"estimated_ms" yaml:"estimated_ms" toml:"estimated_ms"`
	DryRun           bool    `json:"dry_run" yaml:"dry_run" toml:"dry_run"`
	Device           string  `json:"device" yaml:"device" toml:"device"`
	BannerSent       bool    `json:"banner_sent" yaml:"banner_sent" toml:"banner_sent"`
}

// Orchestrator runs playbacks. It is not safe for concurrent use; one
// invocation plays one clip.
type Orchestrator struct {
	open     DeviceOpener
	notifier Notifier
	state    State
}

// New creates an orchestrator. A nil opener uses the malgo device, a nil
// notifier disables banners.
func New(open DeviceOpener, notifier Notifier) *Orchestrator {
	if open == nil {
		open = OpenAudioDevice
	}
	return &Orchestrator{open: open, notifier: notifier}
}

// OpenAudioDevice opens a malgo-backed output device
func OpenAudioDevice(name string, volume float64) (Device, error) {
	p, err := audio.NewPlayer(name, volume)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// State returns the state reached by the last Play call
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(to State) {
	logging.Debug("Playback state: %s -> %s", o.state, to)
	o.state = to
}

func (o *Orchestrator) fail(err error) error {
	o.transition(Failed)
	return err
}

// Play validates params and delivers clip. On failure the returned error is
// an *apperr.Error; for device, timeout and interrupt failures it carries
// the partial Record.
func (o *Orchestrator) Play(ctx context.Context, clip *sound.Clip, params Params) (*Record, error) {
	o.state = Idle
	o.transition(Validating)

	if err := validate(clip, params); err != nil {
		return nil, o.fail(err)
	}

	rec := newRecord(clip, params)

	if params.DryRun {
		o.transition(DryRunShortCircuit)
		rec.RepeatsCompleted = params.Repeat
		rec.EstimatedMs = estimate(clip, params).Milliseconds()
		o.transition(Completed)
		return rec, nil
	}

	o.transition(Playing)
	start := time.Now()
	err := o.deliver(ctx, clip, params, rec)
	rec.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		return nil, o.fail(classify(ctx, err, rec, params))
	}

	if params.Banner != nil && o.notifier != nil {
		if err := o.notifier.Notify(params.Banner.Title, params.Banner.Message); err != nil {
			logging.Warn("Desktop banner not sent: %v", err)
		} else {
			rec.BannerSent = true
		}
	}

	o.transition(Completed)
	return rec, nil
}

// deliver opens the device and plays every repeat. The device is closed on
// every path.
func (o *Orchestrator) deliver(ctx context.Context, clip *sound.Clip, params Params, rec *Record) error {
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, params.Timeout, errTimeout)
		defer cancel()
	}

	dev, err := o.open(params.Device, params.Volume)
	if err != nil {
		return &deviceError{op: "open", err: err}
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logging.Warn("Failed to close audio device: %v", err)
		}
	}()

	for i := 0; i < params.Repeat; i++ {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		played, err := dev.Play(ctx, clip, params.DurationCap)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return &deviceError{op: "play", err: err}
		}
		if ctx.Err() != nil {
			// The device returned cleanly but the repeat did not finish in time
			return context.Cause(ctx)
		}

		rec.RepeatsCompleted++
		rec.RepeatDurationMs = played.Milliseconds()
		logging.Debug("Repeat %d/%d played %s", i+1, params.Repeat, played)

		if i < params.Repeat-1 && params.Interval > 0 {
			if err := wait(ctx, params.Interval); err != nil {
				return err
			}
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

type deviceError struct {
	op  string
	err error
}

func (e *deviceError) Error() string { return e.op + ": " + e.err.Error() }
func (e *deviceError) Unwrap() error { return e.err }

// classify maps a delivery failure onto its kind and attaches rec
func classify(parent context.Context, err error, rec *Record, params Params) error {
	var devErr *deviceError
	switch {
	case errors.As(err, &devErr):
		e := apperr.Wrap(apperr.PlaybackDeviceError, devErr.err, "audio device failed to %s", devErr.op).
			With("detail", devErr.err.Error()).
			With("device", rec.Device)
		var notFound *audio.DeviceNotFoundError
		if errors.As(devErr.err, &notFound) {
			e = e.With("known", notFound.Known)
		}
		return e.WithPartial(rec)

	case parent.Err() != nil:
		return apperr.Wrap(apperr.Interrupted, context.Cause(parent), "playback interrupted after %d of %d repeats",
			rec.RepeatsCompleted, rec.RepeatsRequested).
			With("elapsed_ms", rec.ElapsedMs).
			WithPartial(rec)

	case errors.Is(err, errTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperr.New(apperr.Timeout, "playback exceeded timeout of %s after %d of %d repeats",
			params.Timeout, rec.RepeatsCompleted, rec.RepeatsRequested).
			With("elapsed_ms", rec.ElapsedMs).
			With("limit_ms", params.Timeout.Milliseconds()).
			WithPartial(rec)
	}

	return apperr.Wrap(apperr.Internal, err, "playback failed").WithPartial(rec)
}

func validate(clip *sound.Clip, p Params) error {
	if math.IsNaN(p.Volume) || p.Volume < 0.0 || p.Volume > 1.0 {
		return apperr.New(apperr.InvalidVolume, "volume must be between 0.0 and 1.0 (got %g)", p.Volume).
			With("value", p.Volume).
			With("min", 0.0).
			With("max", 1.0)
	}
	if p.Repeat < 1 {
		return apperr.New(apperr.InvalidArgument, "repeat must be at least 1 (got %d)", p.Repeat).
			With("repeat", p.Repeat)
	}
	if p.Interval < 0 {
		return apperr.New(apperr.InvalidArgument, "interval must not be negative (got %s)", p.Interval).
			With("interval_ms", p.Interval.Milliseconds())
	}
	if p.DurationCap < 0 {
		return apperr.New(apperr.InvalidArgument, "duration cap must not be negative (got %s)", p.DurationCap).
			With("duration_ms", p.DurationCap.Milliseconds())
	}
	if p.Timeout < 0 {
		return apperr.New(apperr.InvalidArgument, "timeout must not be negative (got %s)", p.Timeout).
			With("timeout_ms", p.Timeout.Milliseconds())
	}
	if clip == nil {
		return apperr.New(apperr.InvalidArgument, "no clip to play")
	}
	if !p.DryRun && !clip.Materialized() {
		return apperr.New(apperr.InvalidArgument, "clip %s carries no audio data", clip.Identity())
	}
	return nil
}

// effective returns the length of one repeat; zero when the clip length is
// not known without decoding
func effective(clip *sound.Clip, p Params) time.Duration {
	if p.DurationCap > 0 && p.DurationCap < clip.Duration {
		return p.DurationCap
	}
	return clip.Duration
}

// estimate predicts the wall time of a real run, saturating at the
// largest Duration
func estimate(clip *sound.Clip, p Params) time.Duration {
	return addSat(mulSat(effective(clip, p), p.Repeat), mulSat(p.Interval, p.Repeat-1))
}

func mulSat(d time.Duration, n int) time.Duration {
	if d <= 0 || n <= 0 {
		return 0
	}
	if int64(d) > math.MaxInt64/int64(n) {
		return math.MaxInt64
	}
	return d * time.Duration(n)
}

func addSat(a, b time.Duration) time.Duration {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func newRecord(clip *sound.Clip, p Params) *Record {
	device := p.Device
	if device == "" {
		device = "default"
	}
	return &Record{
		Source:           string(clip.Source),
		Preset:           clip.Preset,
		FrequencyHz:      clip.FrequencyHz,
		File:             clip.File,
		Format:           clip.Format,
		RepeatsRequested: p.Repeat,
		ClipDurationMs:   clip.Duration.Milliseconds(),
		RepeatDurationMs: effective(clip, p).Milliseconds(),
		IntervalMs:       p.Interval.Milliseconds(),
		DurationCapMs:    p.DurationCap.Milliseconds(),
		TimeoutMs:        p.Timeout.Milliseconds(),
		Volume:           p.Volume,
		DryRun:           p.DryRun,
		Device:           device,
	}
}
