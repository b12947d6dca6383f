package main

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/breki/kozmotic/internal/apperr"
	"github.com/breki/kozmotic/internal/config"
	"github.com/breki/kozmotic/internal/dispatch"
	"github.com/breki/kozmotic/internal/envelope"
	"github.com/breki/kozmotic/internal/errorhandler"
	"github.com/breki/kozmotic/internal/logging"
	"github.com/breki/kozmotic/internal/notifier"
	"github.com/breki/kozmotic/internal/playback"
	"github.com/breki/kozmotic/internal/sound"
)

const toolName = "kozmotic"

// cli holds the state of one invocation
type cli struct {
	stdout io.Writer
	stderr io.Writer

	// opener replaces the audio device in tests; nil means malgo
	opener playback.DeviceOpener

	v       *viper.Viper
	cfg     *config.Config
	builder *envelope.Builder

	globalOpts struct {
		format      string
		configPath  string
		verbose     bool
		showVersion bool
	}

	written bool
	code    int
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:  stdout,
		stderr:  stderr,
		v:       config.NewViper(),
		builder: envelope.NewBuilder(toolName, version),
	}
}

// execute runs args and returns the exit code. Exactly one envelope is
// written to stdout unless help was requested.
func (c *cli) execute(ctx context.Context, args []string) int {
	root := c.rootCommand()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil && !c.written {
		err = asInputError(err)
		c.emit(c.builder.Failure(err, dryRunRequested(root, args)), envelope.ExitCode(err))
	}
	return c.code
}

// dryRunRequested reports whether args asked for a dry run, also when
// setup or flag parsing failed before the command ran
func dryRunRequested(root *cobra.Command, args []string) bool {
	cmd, _, err := root.Find(args)
	if err != nil {
		return false
	}
	f := cmd.Flags().Lookup("dry-run")
	if f == nil {
		return false
	}
	if f.Changed {
		v, _ := cmd.Flags().GetBool("dry-run")
		return v
	}

	// Parsing stopped before reaching the flag
	requested := false
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if arg == "--dry-run" {
			requested = true
		} else if v, ok := strings.CutPrefix(arg, "--dry-run="); ok {
			requested, _ = strconv.ParseBool(v)
		}
	}
	return requested
}

// asInputError reports cobra's own failures (unknown flag or command,
// malformed value) as INVALID_ARGUMENT
func asInputError(err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Wrap(apperr.InvalidArgument, err, "%s", err.Error()).With("detail", err.Error())
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   toolName,
		Short: "Play notification sounds and report the outcome as JSON",
		Long: `kozmotic plays a short notification sound (embedded preset, synthesized
tone or audio file) and prints a single machine-readable result envelope.

Exit codes: 0 success, 2 invalid input, 1 device or system failure.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.globalOpts.showVersion {
				return c.runVersion(cmd, args)
			}
			return apperr.New(apperr.InvalidArgument, "a command is required").
				With("commands", []string{"play", "presets", "devices", "version"})
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(c.stderr)
	root.SetErr(c.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperr.Wrap(apperr.InvalidArgument, err, "%s", err.Error()).
			With("command", cmd.Name())
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&c.globalOpts.format, "format", "f", "json",
		"Output format: "+strings.Join(config.Formats, ", "))
	flags.StringVar(&c.globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/kozmotic/config.toml)")
	flags.BoolVarP(&c.globalOpts.verbose, "verbose", "v", false,
		"Enable debug logging on stderr")
	root.Flags().BoolVar(&c.globalOpts.showVersion, "version", false,
		"Print version information")

	_ = c.v.BindPFlag("format", flags.Lookup("format"))
	_ = c.v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(
		c.playCommand(),
		c.presetsCommand(),
		c.devicesCommand(),
		c.versionCommand(),
	)
	return root
}

// setup loads the configuration and the logger for the running command
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	// Play flags override config values only when given
	for _, key := range []string{"volume", "repeat", "interval", "timeout", "device"} {
		if f := cmd.Flags().Lookup(key); f != nil {
			if err := c.v.BindPFlag(key, f); err != nil {
				return apperr.Wrap(apperr.Internal, err, "failed to bind flag --%s", key)
			}
		}
	}

	cfg, err := config.LoadViper(c.v, c.globalOpts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	if _, err := logging.InitLogger(logging.Options{
		Verbose: cfg.Verbose,
		File:    cfg.LogFile,
		Writer:  c.stderr,
	}); err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to initialize logger")
	}

	logging.Debug("kozmotic %s: command=%s format=%s", version, cmd.Name(), cfg.Format)
	return nil
}

// handler builds the dispatch pipeline for the loaded configuration
func (c *cli) handler(banner bool) *dispatch.Handler {
	var notif playback.Notifier
	if banner && c.cfg.IsDesktopEnabled() {
		notif = notifier.New(c.cfg)
	}
	return dispatch.NewHandler(sound.NewResolver(nil), playback.New(c.opener, notif), c.builder)
}

// emit writes env in the configured format
func (c *cli) emit(env envelope.Envelope, code int) {
	c.written = true
	c.code = code

	format := c.globalOpts.format
	if c.cfg != nil {
		format = c.cfg.Format
	}
	formatter, err := envelope.NewFormatter(format)
	if err != nil {
		formatter = envelope.JSONFormatter{}
	}

	if err := formatter.Format(c.stdout, env); err != nil {
		// Fall back to JSON so the caller still gets an envelope
		logging.Error("Failed to write %s envelope: %v", format, err)
		if _, ok := formatter.(envelope.JSONFormatter); !ok {
			_ = envelope.JSONFormatter{}.Format(c.stdout, env)
			return
		}
		errorhandler.HandleCriticalError(err, "failed to write envelope")
		c.code = envelope.ExitSystem
	}
}
