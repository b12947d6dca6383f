// Package envelope wraps every outcome of an invocation in the uniform
// result document printed on stdout.
package envelope

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/breki/kozmotic/internal/apperr"
)

// Status is the top-level outcome
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope is the document written for every invocation. Exactly one of
// Data and Error is set.
type Envelope struct {
	Status   Status       `json:"status" yaml:"status" toml:"status"`
	Data     any          `json:"data,omitempty" yaml:"data,omitempty" toml:"data,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Metadata Metadata     `json:"metadata" yaml:"metadata" toml:"metadata"`
}

// ErrorDetail describes a failure
type ErrorDetail struct {
	Code    string         `json:"code" yaml:"code" toml:"code"`
	Message string         `json:"message" yaml:"message" toml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty" toml:"details,omitempty"`
	Partial any            `json:"partial,omitempty" yaml:"partial,omitempty" toml:"partial,omitempty"`
}

// Metadata identifies the invocation
type Metadata struct {
	Timestamp    string `json:"timestamp" yaml:"timestamp" toml:"timestamp"`
	ToolName     string `json:"tool_name" yaml:"tool_name" toml:"tool_name"`
	Version      string `json:"version" yaml:"version" toml:"version"`
	InvocationID string `json:"invocation_id" yaml:"invocation_id" toml:"invocation_id"`
	DryRun       bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty" toml:"dry_run,omitempty"`
}

// Builder stamps envelopes with tool identity, time and invocation id
type Builder struct {
	Tool    string
	Version string
	Now     func() time.Time
	NewID   func() string
}

// NewBuilder creates a builder using the wall clock and random UUIDs
func NewBuilder(tool, version string) *Builder {
	return &Builder{
		Tool:    tool,
		Version: version,
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

func (b *Builder) metadata(dryRun bool) Metadata {
	now, newID := b.Now, b.NewID
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return Metadata{
		Timestamp:    now().UTC().Format(time.RFC3339),
		ToolName:     b.Tool,
		Version:      b.Version,
		InvocationID: newID(),
		DryRun:       dryRun,
	}
}

// Success wraps data. Nil data becomes an empty object so that a success
// envelope always carries data.
func (b *Builder) Success(data any, dryRun bool) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Status:   StatusSuccess,
		Data:     data,
		Metadata: b.metadata(dryRun),
	}
}

// Failure wraps err. Errors without a kind are reported as INTERNAL.
func (b *Builder) Failure(err error, dryRun bool) Envelope {
	if err == nil {
		return b.Success(nil, dryRun)
	}

	e := apperr.As(err)
	message := e.Message
	if e.Kind == apperr.Internal && e.Err != nil {
		message = message + ": " + e.Err.Error()
	}

	return Envelope{
		Status: StatusError,
		Error: &ErrorDetail{
			Code:    e.Kind.Code(),
			Message: message,
			Details: sanitize(e.Details),
			Partial: e.Partial,
		},
		Metadata: b.metadata(dryRun),
	}
}

// Build picks Success or Failure depending on err
func (b *Builder) Build(data any, err error, dryRun bool) Envelope {
	if err != nil {
		return b.Failure(err, dryRun)
	}
	return b.Success(data, dryRun)
}

// sanitize replaces values JSON cannot carry (NaN, ±Inf)
func sanitize(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[k] = strconv.FormatFloat(f, 'g', -1, 64)
			continue
		}
		out[k] = v
	}
	return out
}
