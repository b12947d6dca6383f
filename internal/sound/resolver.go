package sound

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/logging"
)

// ResolveOptions controls how a Request is turned into a Clip.
type ResolveOptions struct {
	// DryRun validates the request and describes the clip without decoding
	// or synthesizing any audio.
	DryRun bool
	// ToneDuration is the length of synthesized tones; zero means
	// DefaultToneDuration.
	ToneDuration time.Duration
}

// Resolver resolves sound requests against a preset registry and the
// filesystem.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver backed by the given registry; nil means
// the embedded default registry.
func NewResolver(registry *Registry) *Resolver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Resolver{registry: registry}
}

// Registry returns the registry used for preset lookups
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// ResolveSelection validates that exactly one selector is populated and
// resolves it.
func (r *Resolver) ResolveSelection(sel Selection, opts ResolveOptions) (*Clip, error) {
	req, err := Select(sel)
	if err != nil {
		return nil, err
	}
	return r.Resolve(req, opts)
}

// Resolve turns a Request into a Clip.
func (r *Resolver) Resolve(req Request, opts ResolveOptions) (*Clip, error) {
	switch v := req.(type) {
	case Preset:
		return r.resolvePreset(v, opts)
	case *Preset:
		if v != nil {
			return r.resolvePreset(*v, opts)
		}
	case Tone:
		return r.resolveTone(v, opts)
	case *Tone:
		if v != nil {
			return r.resolveTone(*v, opts)
		}
	case File:
		return r.resolveFile(v, opts)
	case *File:
		if v != nil {
			return r.resolveFile(*v, opts)
		}
	}
	return nil, apperr.New(apperr.InvalidSourceSelection,
		"exactly one sound source is required (preset, tone or file), none given")
}

func (r *Resolver) resolvePreset(p Preset, opts ResolveOptions) (*Clip, error) {
	info, data, ok := r.registry.Lookup(p.Name)
	if !ok {
		known := r.registry.Names()
		return nil, apperr.New(apperr.UnknownPreset, "unknown preset %q", p.Name).
			With("name", p.Name).
			With("known", known)
	}

	clip := &Clip{
		Source:     SourcePreset,
		Preset:     info.Name,
		Format:     FormatWAV,
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		BitDepth:   16,
		Duration:   info.Duration(),
		DryRun:     opts.DryRun,
	}
	if opts.DryRun {
		logging.Debug("Dry run: preset %s described, not decoded", info.Name)
		return clip, nil
	}

	dec, err := decode(readSeekNopCloser{bytes.NewReader(data)}, FormatWAV)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "embedded preset %q is corrupt", info.Name)
	}
	return fill(clip, dec), nil
}

func (r *Resolver) resolveTone(t Tone, opts ResolveOptions) (*Clip, error) {
	if err := validateFrequency(t.FrequencyHz); err != nil {
		return nil, err
	}

	d := opts.ToneDuration
	if d == 0 {
		d = DefaultToneDuration
	}
	if err := validateToneDuration(d); err != nil {
		return nil, err
	}

	clip := &Clip{
		Source:      SourceTone,
		FrequencyHz: t.FrequencyHz,
		Format:      FormatPCM,
		SampleRate:  ToneSampleRate,
		Channels:    ToneChannels,
		BitDepth:    ToneBitDepth,
		Duration:    d,
		DryRun:      opts.DryRun,
	}
	if opts.DryRun {
		return clip, nil
	}

	pcm, err := SynthesizeTone(t.FrequencyHz, d)
	if err != nil {
		return nil, err
	}
	clip.PCM = pcm
	clip.Duration = pcmDuration(len(pcm), ToneSampleRate, ToneChannels)
	return clip, nil
}

func (r *Resolver) resolveFile(f File, opts ResolveOptions) (*Clip, error) {
	path := f.Path
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Debug("Stat failed for %s: %v", path, err)
		}
		return nil, apperr.New(apperr.FileNotFound, "sound file not found: %s", path).
			With("path", path)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.FileNotFound, err, "sound file not readable: %s", path).
			With("path", path)
	}
	defer fh.Close()

	format, ok := sniffFormat(fh, path)
	if !ok {
		return nil, apperr.New(apperr.UnsupportedFormat, "unsupported audio format %s: %s", format, path).
			With("path", path).
			With("detected_type", format).
			With("supported", SupportedFormats)
	}

	clip := &Clip{
		Source: SourceFile,
		File:   path,
		Format: format,
		DryRun: opts.DryRun,
	}
	if opts.DryRun {
		logging.Debug("Dry run: file %s detected as %s, not decoded", path, format)
		return clip, nil
	}

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return nil, apperr.Wrap(apperr.FileNotFound, err, "sound file not readable: %s", path).
			With("path", path)
	}

	dec, err := decode(fh, format)
	if err != nil || len(dec.pcm) == 0 {
		if err == nil {
			err = errors.New("no audio samples")
		}
		return nil, apperr.Wrap(apperr.UnsupportedFormat, err, "failed to decode %s as %s", path, format).
			With("path", path).
			With("detected_type", format)
	}
	return fill(clip, dec), nil
}

func fill(clip *Clip, dec *decoded) *Clip {
	clip.PCM = dec.pcm
	clip.SampleRate = dec.sampleRate
	clip.Channels = dec.channels
	clip.BitDepth = dec.bitDepth
	clip.Duration = pcmDuration(len(dec.pcm), dec.sampleRate, dec.channels)
	return clip
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }
