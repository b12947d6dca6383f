// Package sound resolves a requested sound source (embedded preset,
// synthesized tone or caller-supplied file) into a playable Clip.
package sound

import (
	"strings"

	"github.com/breki/kozmotic/internal/apperr"
)

// SourceKind names the active variant of a Request.
type SourceKind string

const (
	SourcePreset SourceKind = "preset"
	SourceTone   SourceKind = "tone"
	SourceFile   SourceKind = "file"
)

// Request is a sound source with exactly one active variant.
// The only implementations are Preset, Tone and File.
type Request interface {
	Kind() SourceKind
	isRequest()
}

// Preset selects an embedded clip by case-insensitive name.
type Preset struct {
	Name string
}

// Tone selects a synthesized sine wave.
type Tone struct {
	FrequencyHz float64
}

// File selects a caller-supplied audio file.
type File struct {
	Path string
}

func (Preset) Kind() SourceKind { return SourcePreset }
func (Tone) Kind() SourceKind   { return SourceTone }
func (File) Kind() SourceKind   { return SourceFile }

func (Preset) isRequest() {}
func (Tone) isRequest()   {}
func (File) isRequest()   {}

// Selection holds the raw source selectors as they arrive from flags or
// configuration. A nil field means "not given".
type Selection struct {
	Preset *string
	Tone   *float64
	File   *string
}

// Given returns the names of the populated selectors.
func (s Selection) Given() []string {
	var given []string
	if s.Preset != nil {
		given = append(given, string(SourcePreset))
	}
	if s.Tone != nil {
		given = append(given, string(SourceTone))
	}
	if s.File != nil {
		given = append(given, string(SourceFile))
	}
	return given
}

// Select converts a Selection into a Request. Zero or multiple populated
// selectors fail with InvalidSourceSelection.
func Select(s Selection) (Request, error) {
	given := s.Given()
	switch len(given) {
	case 0:
		return nil, apperr.New(apperr.InvalidSourceSelection,
			"exactly one sound source is required (preset, tone or file), none given").
			With("given", []string{})
	case 1:
	default:
		return nil, apperr.New(apperr.InvalidSourceSelection,
			"exactly one sound source is required, got %s", strings.Join(given, ", ")).
			With("given", given)
	}

	switch {
	case s.Preset != nil:
		return Preset{Name: *s.Preset}, nil
	case s.Tone != nil:
		return Tone{FrequencyHz: *s.Tone}, nil
	default:
		return File{Path: *s.File}, nil
	}
}
