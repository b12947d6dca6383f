package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/breki/kozmotic/internal/dispatch"
	"github.com/breki/kozmotic/internal/envelope"
)

// VersionInfo is the data of the version envelope
type VersionInfo struct {
	Version   string `json:"version" yaml:"version" toml:"version"`
	Commit    string `json:"commit" yaml:"commit" toml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time" toml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version" toml:"go_version"`
	Platform  string `json:"platform" yaml:"platform" toml:"platform"`
}

func (c *cli) presetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the embedded presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, code := c.handler(false).Handle(cmd.Context(), dispatch.Request{ListPresets: true})
			c.emit(env, code)
			return nil
		},
	}
}

func (c *cli) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio output devices",
		Long: `List audio output devices.

Use a device name with "kozmotic play --device NAME" or the "device" config key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, code := c.handler(false).Handle(cmd.Context(), dispatch.Request{ListDevices: true})
			c.emit(env, code)
			return nil
		},
	}
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE:  c.runVersion,
	}
}

func (c *cli) runVersion(cmd *cobra.Command, args []string) error {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	c.emit(c.builder.Success(info, false), envelope.ExitSuccess)
	return nil
}
