// Package dispatch runs one invocation end to end: source resolution,
// playback and envelope construction.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/audio"
	"github.com/breki/kozmotic/internal/envelope"
	"github.com/breki/kozmotic/internal/errorhandler"
	"github.com/breki/kozmotic/internal/logging"
	"github.com/breki/kozmotic/internal/playback"
	"github.com/breki/kozmotic/internal/sound"
)

// Request is one parsed invocation
type Request struct {
	Selection    sound.Selection
	Params       playback.Params
	ToneDuration time.Duration // 0 = default; a duration cap takes precedence
	ListPresets  bool          // query mode: return the preset registry
	ListDevices  bool          // query mode: return the output devices
}

// player abstracts the orchestrator for tests
type player interface {
	Play(ctx context.Context, clip *sound.Clip, params playback.Params) (*playback.Record, error)
}

// Handler composes resolver, orchestrator and envelope builder
type Handler struct {
	resolver    *sound.Resolver
	player      player
	builder     *envelope.Builder
	listDevices func() ([]audio.DeviceInfo, error)
}

// NewHandler creates a handler. Nil arguments fall back to the embedded
// presets, the malgo device without banners and an unversioned builder.
func NewHandler(resolver *sound.Resolver, orchestrator *playback.Orchestrator, builder *envelope.Builder) *Handler {
	if resolver == nil {
		resolver = sound.NewResolver(nil)
	}
	if orchestrator == nil {
		orchestrator = playback.New(nil, nil)
	}
	if builder == nil {
		builder = envelope.NewBuilder("kozmotic", "dev")
	}
	return &Handler{
		resolver:    resolver,
		player:      orchestrator,
		builder:     builder,
		listDevices: audio.ListDevices,
	}
}

// Handle runs req and returns its envelope with the process exit code.
// It never panics; a recovered panic becomes an INTERNAL envelope.
func (h *Handler) Handle(ctx context.Context, req Request) (envelope.Envelope, int) {
	logging.SetPrefix(fmt.Sprintf("PID:%d", os.Getpid()))

	dryRun := req.Params.DryRun
	var data any
	err := errorhandler.Recover(func() error {
		var err error
		data, err = h.run(ctx, req)
		return err
	})

	if err != nil {
		logging.Debug("Invocation failed: %v", err)
	}
	return h.builder.Build(data, err, dryRun), envelope.ExitCode(err)
}

func (h *Handler) run(ctx context.Context, req Request) (any, error) {
	switch {
	case req.ListPresets:
		logging.Debug("Listing presets")
		return h.resolver.Registry().Presets(), nil
	case req.ListDevices:
		return h.devices()
	}

	opts := sound.ResolveOptions{
		DryRun:       req.Params.DryRun,
		ToneDuration: req.ToneDuration,
	}
	if req.Params.DurationCap > 0 {
		// A cap is an upper bound, never a reason to reject the tone
		opts.ToneDuration = min(req.Params.DurationCap, sound.MaxToneDuration)
	}

	clip, err := h.resolver.ResolveSelection(req.Selection, opts)
	if err != nil {
		return nil, err
	}
	logging.Debug("Resolved %s source %s (%s, %s)", clip.Source, clip.Identity(), clip.Format, clip.Duration)

	rec, err := h.player.Play(ctx, clip, req.Params)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (h *Handler) devices() (any, error) {
	devices, err := h.listDevices()
	if err != nil {
		return nil, apperr.Wrap(apperr.PlaybackDeviceError, err, "failed to list audio devices").
			With("detail", err.Error())
	}
	logging.Debug("Found %d audio devices", len(devices))
	return devices, nil
}
