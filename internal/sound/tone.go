package sound

import (
	"math"
	"strconv"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"

	"github.com/breki/kozmotic/internal/apperr"
)

// Tone synthesis constants. Changing any of these changes the bytes produced
// for a given frequency, so they stay fixed across versions.
const (
	MinFrequencyHz      = 20.0
	MaxFrequencyHz      = 20000.0
	ToneSampleRate      = 44100
	ToneBitDepth        = 16
	ToneChannels        = 1
	ToneAmplitude       = 0.5
	DefaultToneDuration = 500 * time.Millisecond
	MaxToneDuration     = 60 * time.Second
)

// validateFrequency rejects NaN and anything outside [MinFrequencyHz, MaxFrequencyHz]
func validateFrequency(hz float64) error {
	if math.IsNaN(hz) || hz < MinFrequencyHz || hz > MaxFrequencyHz {
		return apperr.New(apperr.FrequencyOutOfRange,
			"tone frequency %s Hz is outside [%s, %s] Hz", formatHz(hz), formatHz(MinFrequencyHz), formatHz(MaxFrequencyHz)).
			With("value", hz).
			With("min", MinFrequencyHz).
			With("max", MaxFrequencyHz)
	}
	return nil
}

func validateToneDuration(d time.Duration) error {
	if d <= 0 || d > MaxToneDuration {
		return apperr.New(apperr.InvalidArgument,
			"tone duration %s is outside (0, %s]", d, MaxToneDuration).
			With("value_ms", d.Milliseconds()).
			With("max_ms", MaxToneDuration.Milliseconds())
	}
	return nil
}

// SynthesizeTone renders a sine wave of the given frequency and duration as
// mono S16LE PCM at ToneSampleRate. It is pure: identical inputs always
// produce identical bytes.
func SynthesizeTone(hz float64, d time.Duration) ([]byte, error) {
	if err := validateFrequency(hz); err != nil {
		return nil, err
	}
	if err := validateToneDuration(d); err != nil {
		return nil, err
	}

	sr := beep.SampleRate(ToneSampleRate)
	sine, err := generators.SineTone(sr, hz)
	if err != nil {
		return nil, apperr.Wrap(apperr.FrequencyOutOfRange, err, "cannot synthesize %s Hz", formatHz(hz))
	}

	// Gain scales by (1 + Gain)
	shaped := &effects.Gain{Streamer: sine, Gain: ToneAmplitude - 1}
	samples := streamToSamples(beep.Take(sr.N(d), shaped), ToneChannels)
	return samplesToBytes(samples), nil
}

func formatHz(hz float64) string {
	return strconv.FormatFloat(hz, 'f', -1, 64)
}
