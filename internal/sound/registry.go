package sound

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/wav"

	"github.com/breki/kozmotic/internal/logging"
)

// embeddedPresets contains the bundled preset clips.
//
//go:embed presets/*.wav
var embeddedPresets embed.FS

const presetDir = "presets"

// PresetInfo describes one registry entry.
type PresetInfo struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Bytes      int    `json:"bytes" yaml:"bytes" toml:"bytes"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms" toml:"duration_ms"`
	SampleRate int    `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`
	Channels   int    `json:"channels" yaml:"channels" toml:"channels"`
}

// Duration returns the clip length
func (p PresetInfo) Duration() time.Duration {
	return time.Duration(p.DurationMs) * time.Millisecond
}

type presetEntry struct {
	info PresetInfo
	data []byte
}

// Registry is a read-only table of preset clips keyed by lower-case name.
// It is built on first use and never mutated afterward.
type Registry struct {
	fsys fs.FS
	dir  string

	once    sync.Once
	entries map[string]presetEntry
	names   []string
}

var defaultRegistry = NewRegistry(embeddedPresets, presetDir)

// DefaultRegistry returns the process-wide registry of embedded presets
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry creates a registry over the .wav files in dir of fsys
func NewRegistry(fsys fs.FS, dir string) *Registry {
	return &Registry{fsys: fsys, dir: dir}
}

func (r *Registry) load() {
	r.once.Do(func() {
		r.entries = make(map[string]presetEntry)

		files, err := fs.ReadDir(r.fsys, r.dir)
		if err != nil {
			logging.Error("Failed to read preset directory: %v", err)
			return
		}

		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(path.Ext(f.Name()), ".wav") {
				continue
			}
			name := strings.ToLower(strings.TrimSuffix(f.Name(), path.Ext(f.Name())))

			data, err := fs.ReadFile(r.fsys, path.Join(r.dir, f.Name()))
			if err != nil {
				logging.Warn("Failed to read preset %s: %v", f.Name(), err)
				continue
			}

			info, err := inspectWAV(name, data)
			if err != nil {
				logging.Warn("Skipping unreadable preset %s: %v", f.Name(), err)
				continue
			}

			r.entries[name] = presetEntry{info: info, data: data}
			r.names = append(r.names, name)
		}

		sort.Strings(r.names)
		logging.Debug("Preset registry loaded: %d presets", len(r.names))
	})
}

// inspectWAV reads the WAV header only; samples are not decoded
func inspectWAV(name string, data []byte) (PresetInfo, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return PresetInfo{}, fmt.Errorf("invalid wav header: %w", err)
	}
	defer streamer.Close()

	return PresetInfo{
		Name:       name,
		Bytes:      len(data),
		DurationMs: format.SampleRate.D(streamer.Len()).Milliseconds(),
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
	}, nil
}

// Names returns the known preset names, sorted
func (r *Registry) Names() []string {
	r.load()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Presets returns info for every preset, sorted by name
func (r *Registry) Presets() []PresetInfo {
	r.load()
	out := make([]PresetInfo, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.entries[name].info)
	}
	return out
}

// Lookup finds a preset by case-insensitive name. The returned bytes are
// shared and must not be modified.
func (r *Registry) Lookup(name string) (PresetInfo, []byte, bool) {
	r.load()
	entry, ok := r.entries[strings.ToLower(strings.TrimSpace(name))]
	return entry.info, entry.data, ok
}

// KnownPresets returns the names in the default registry
func KnownPresets() []string {
	return defaultRegistry.Names()
}
