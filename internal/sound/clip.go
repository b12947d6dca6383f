package sound

import "time"

// PCM layout of every materialized Clip: signed 16-bit little-endian,
// interleaved channels.
const BytesPerSample = 2

// Clip is resolved audio: identity of the source, format metadata and the
// PCM payload. In dry-run mode PCM is nil and the Clip is a description only.
// A Clip is never modified after Resolve returns it.
type Clip struct {
	Source      SourceKind
	Preset      string
	FrequencyHz float64
	File        string

	Format     string // wav, mp3, flac, ogg, aiff or pcm for synthesized tones
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration // zero when unknown without decoding

	PCM    []byte
	DryRun bool
}

// FrameSize returns the number of bytes per frame
func (c *Clip) FrameSize() int {
	return c.Channels * BytesPerSample
}

// Frames returns the number of PCM frames
func (c *Clip) Frames() int {
	if c.FrameSize() == 0 {
		return 0
	}
	return len(c.PCM) / c.FrameSize()
}

// BytesFor returns the byte offset of d into the PCM, aligned to a frame
// boundary and bounded by the payload length.
func (c *Clip) BytesFor(d time.Duration) int {
	if d <= 0 || c.SampleRate == 0 {
		return 0
	}
	frames := int(int64(d) * int64(c.SampleRate) / int64(time.Second))
	n := frames * c.FrameSize()
	if n > len(c.PCM) {
		n = len(c.PCM)
	}
	return n
}

// Materialized reports whether the Clip carries playable PCM
func (c *Clip) Materialized() bool {
	return !c.DryRun && len(c.PCM) > 0
}

// Identity returns the preset name, frequency or path, whichever is active
func (c *Clip) Identity() string {
	switch c.Source {
	case SourcePreset:
		return c.Preset
	case SourceFile:
		return c.File
	case SourceTone:
		return formatHz(c.FrequencyHz)
	}
	return ""
}

func pcmDuration(pcmLen, sampleRate, channels int) time.Duration {
	if sampleRate == 0 || channels == 0 {
		return 0
	}
	frames := pcmLen / (channels * BytesPerSample)
	return time.Duration(int64(frames) * int64(time.Second) / int64(sampleRate))
}
