// ABOUTME: Audio output device with device selection support.
// ABOUTME: Uses malgo (miniaudio bindings) to play resolved PCM clips.

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/breki/kozmotic/internal/logging"
	"github.com/breki/kozmotic/internal/sound"
)

// drainDelay lets the device flush its last period after the data runs out
const drainDelay = 200 * time.Millisecond

// stallGrace is added to the clip length before a playback is considered stuck
const stallGrace = 5 * time.Second

// ErrStalled is returned when the device stops requesting data
var ErrStalled = errors.New("audio device stalled")

// DeviceInfo represents an audio output device
type DeviceInfo struct {
	Name      string `json:"name" yaml:"name" toml:"name"`
	IsDefault bool   `json:"is_default" yaml:"is_default" toml:"is_default"`
}

// Player plays clips on a specific device. The miniaudio context is held
// from NewPlayer until Close.
type Player struct {
	ctx        *malgo.AllocatedContext
	deviceID   unsafe.Pointer
	deviceName string
	volume     float64
	mu         sync.Mutex
}

// DeviceNotFoundError reports a requested device name that no output
// device carries. Known lists the names that were available.
type DeviceNotFoundError struct {
	Name  string
	Known []string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no output device named %q", e.Name)
}

func openContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio backend unavailable: %w", err)
	}
	return ctx, nil
}

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

func outputDevices(ctx *malgo.AllocatedContext) ([]malgo.DeviceInfo, error) {
	devices, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate output devices: %w", err)
	}
	return devices, nil
}

// ListDevices describes the output devices the backend reports
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := openContext()
	if err != nil {
		return nil, err
	}
	defer releaseContext(ctx)

	devices, err := outputDevices(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceInfo, len(devices))
	for i, dev := range devices {
		out[i] = DeviceInfo{Name: dev.Name(), IsDefault: dev.IsDefault != 0}
	}
	return out, nil
}

// NewPlayer holds a backend context for deviceName until Close. An empty
// name plays on the system default device.
func NewPlayer(deviceName string, volume float64) (*Player, error) {
	ctx, err := openContext()
	if err != nil {
		return nil, err
	}

	p := &Player{ctx: ctx, deviceName: deviceName, volume: volume}
	if deviceName == "" {
		return p, nil
	}

	devices, err := outputDevices(ctx)
	if err != nil {
		releaseContext(ctx)
		return nil, err
	}

	known := make([]string, 0, len(devices))
	for _, dev := range devices {
		if dev.Name() == deviceName {
			p.deviceID = dev.ID.Pointer()
			logging.Debug("Using output device %q", deviceName)
			return p, nil
		}
		known = append(known, dev.Name())
	}

	releaseContext(ctx)
	return nil, &DeviceNotFoundError{Name: deviceName, Known: known}
}

// Play plays clip once and blocks until it ends, limit is reached (if
// positive) or ctx is done. It returns how much audio was played. When ctx
// ends first the error is ctx.Err().
func (p *Player) Play(ctx context.Context, clip *sound.Clip, limit time.Duration) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return 0, errors.New("audio player is closed")
	}
	if clip == nil || !clip.Materialized() {
		return 0, errors.New("clip has no audio data")
	}

	audioData := prepareBuffer(clip, limit, p.volume)
	frameSize := clip.FrameSize()
	total := durationOf(len(audioData), clip)

	// Create device config with larger buffer to prevent crackling
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(clip.Channels)
	deviceConfig.SampleRate = uint32(clip.SampleRate)
	deviceConfig.PeriodSizeInFrames = 4096
	deviceConfig.Periods = 4
	deviceConfig.Alsa.NoMMap = 1

	// Set specific device if configured
	if p.deviceID != nil {
		deviceConfig.Playback.DeviceID = p.deviceID
	}

	// Playback state, written from the device thread
	var pos atomic.Int64
	done := make(chan struct{})
	var doneOnce sync.Once

	dataCallback := func(outputSamples, inputSamples []byte, frameCount uint32) {
		cur := int(pos.Load())
		bytesToWrite := int(frameCount) * frameSize
		if cur+bytesToWrite > len(audioData) {
			bytesToWrite = len(audioData) - cur
		}

		if bytesToWrite > 0 {
			copy(outputSamples, audioData[cur:cur+bytesToWrite])
			cur += bytesToWrite
			pos.Store(int64(cur))
		}

		// Fill remaining with silence
		for i := bytesToWrite; i < len(outputSamples); i++ {
			outputSamples[i] = 0
		}

		if cur >= len(audioData) {
			doneOnce.Do(func() {
				close(done)
			})
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: dataCallback,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to init audio device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return 0, fmt.Errorf("failed to start audio device: %w", err)
	}
	defer func() { _ = device.Stop() }()

	stall := time.NewTimer(total + stallGrace)
	defer stall.Stop()

	select {
	case <-done:
	case <-ctx.Done():
		played := durationOf(int(pos.Load()), clip)
		logging.Debug("Audio playback aborted after %s: %v", played, ctx.Err())
		return played, ctx.Err()
	case <-stall.C:
		played := durationOf(int(pos.Load()), clip)
		logging.Warn("Audio playback stalled after %s of %s", played, total)
		return played, ErrStalled
	}

	// Delay to let buffer drain completely
	drain := time.NewTimer(drainDelay)
	defer drain.Stop()
	select {
	case <-drain.C:
	case <-ctx.Done():
		return total, ctx.Err()
	}

	logging.Debug("Audio playback completed: %s (%s)", clip.Identity(), total)
	return total, nil
}

// Close releases the audio context
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		releaseContext(p.ctx)
		p.ctx = nil
	}
	return nil
}

// DeviceName returns the configured device name ("" = system default)
func (p *Player) DeviceName() string {
	return p.deviceName
}

// prepareBuffer returns the bytes to send to the device: the clip truncated
// at limit and scaled by volume. The clip itself is never modified.
func prepareBuffer(clip *sound.Clip, limit time.Duration, volume float64) []byte {
	data := clip.PCM
	if limit > 0 {
		data = data[:clip.BytesFor(limit)]
	}

	out := make([]byte, len(data))
	if volume >= 1.0 {
		copy(out, data)
		return out
	}

	for i := 0; i+1 < len(data); i += 2 {
		s := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		s = int16(float64(s) * volume)
		out[i] = byte(s)
		out[i+1] = byte(s >> 8)
	}
	return out
}

func durationOf(n int, clip *sound.Clip) time.Duration {
	frameSize := clip.FrameSize()
	if frameSize == 0 || clip.SampleRate == 0 {
		return 0
	}
	frames := int64(n / frameSize)
	return time.Duration(frames * int64(time.Second) / int64(clip.SampleRate))
}
