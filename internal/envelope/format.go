package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/breki/kozmotic/internal/apperr"
)

// Formatter writes an envelope
type Formatter interface {
	Format(w io.Writer, env Envelope) error
}

// FormatType names an output format
type FormatType string

const (
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
	FormatTOML  FormatType = "toml"
	FormatHuman FormatType = "human"
)

// FormatTypes lists every supported format
var FormatTypes = []FormatType{FormatJSON, FormatYAML, FormatTOML, FormatHuman}

// NewFormatter creates a formatter for the named format
func NewFormatter(format string) (Formatter, error) {
	switch FormatType(strings.ToLower(strings.TrimSpace(format))) {
	case FormatJSON, "":
		return JSONFormatter{}, nil
	case FormatYAML:
		return YAMLFormatter{}, nil
	case FormatTOML:
		return TOMLFormatter{}, nil
	case FormatHuman:
		return HumanFormatter{}, nil
	}
	return nil, apperr.New(apperr.InvalidArgument, "unknown output format %q", format).
		With("format", format).
		With("supported", FormatTypes)
}

// JSONFormatter writes indented JSON
type JSONFormatter struct{}

// Format writes env as JSON
func (JSONFormatter) Format(w io.Writer, env Envelope) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(env)
}

// YAMLFormatter writes YAML
type YAMLFormatter struct{}

// Format writes env as YAML
func (YAMLFormatter) Format(w io.Writer, env Envelope) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(env); err != nil {
		return err
	}
	return encoder.Close()
}

// TOMLFormatter writes TOML
type TOMLFormatter struct{}

// Format writes env as TOML
func (TOMLFormatter) Format(w io.Writer, env Envelope) error {
	return toml.NewEncoder(w).Encode(env)
}

// HumanFormatter writes a short plain-text report
type HumanFormatter struct{}

// Format writes env as indented "key: value" lines
func (HumanFormatter) Format(w io.Writer, env Envelope) error {
	var sb strings.Builder

	if env.Status == StatusSuccess {
		sb.WriteString("OK")
	} else if env.Error != nil {
		fmt.Fprintf(&sb, "ERROR %s: %s", env.Error.Code, env.Error.Message)
	} else {
		sb.WriteString("ERROR")
	}
	if env.Metadata.DryRun {
		sb.WriteString(" (dry run)")
	}
	sb.WriteString("\n")

	var err error
	if env.Error != nil {
		if len(env.Error.Details) > 0 {
			sb.WriteString("details:\n")
			err = writeValue(&sb, env.Error.Details, 1, "")
		}
		if err == nil && env.Error.Partial != nil {
			sb.WriteString("partial:\n")
			err = writeValue(&sb, env.Error.Partial, 1, "")
		}
	} else if env.Data != nil {
		err = writeValue(&sb, env.Data, 1, "")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(&sb, "%s %s  %s  %s\n",
		env.Metadata.ToolName, env.Metadata.Version, env.Metadata.InvocationID, env.Metadata.Timestamp)

	_, err = io.WriteString(w, sb.String())
	return err
}

// writeValue renders v through its JSON form so field names match the
// other formats
func writeValue(sb *strings.Builder, v any, depth int, key string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return err
	}
	render(sb, generic, depth, key)
	return nil
}

func render(sb *strings.Builder, v any, depth int, key string) {
	indent := strings.Repeat("  ", depth)

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch child := val[k].(type) {
			case map[string]any, []any:
				if isScalarList(child) {
					fmt.Fprintf(sb, "%s%s: %s\n", indent, k, scalarList(child.([]any)))
					continue
				}
				fmt.Fprintf(sb, "%s%s:\n", indent, k)
				render(sb, child, depth+1, k)
			default:
				fmt.Fprintf(sb, "%s%s: %s\n", indent, k, scalar(k, child))
			}
		}

	case []any:
		if len(val) == 0 {
			fmt.Fprintf(sb, "%s(none)\n", indent)
		}
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				fmt.Fprintf(sb, "%s- %s\n", indent, inline(m))
				continue
			}
			fmt.Fprintf(sb, "%s- %s\n", indent, scalar(key, item))
		}

	default:
		fmt.Fprintf(sb, "%s%s\n", indent, scalar(key, val))
	}
}

func isScalarList(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func scalarList(list []any) string {
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = scalar("", item)
	}
	return strings.Join(parts, ", ")
}

// inline renders a flat object on one line, "name" first when present
func inline(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "name" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var parts []string
	if name, ok := m["name"]; ok {
		parts = append(parts, scalar("name", name))
	}
	for _, k := range keys {
		parts = append(parts, k+"="+scalar(k, m[k]))
	}
	return strings.Join(parts, "  ")
}

func scalar(key string, v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		if val == "" {
			return `""`
		}
		return val
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case json.Number:
		if i, err := val.Int64(); err == nil {
			if key == "bytes" && i >= 0 {
				return humanize.Bytes(uint64(i))
			}
			return humanize.Comma(i)
		}
		if f, err := val.Float64(); err == nil {
			return humanize.Ftoa(f)
		}
		return val.String()
	}
	return fmt.Sprint(v)
}
