package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/breki/kozmotic/internal/dispatch"
	"github.com/breki/kozmotic/internal/playback"
	"github.com/breki/kozmotic/internal/sound"
)

type playOptions struct {
	preset      string
	tone        float64
	file        string
	duration    time.Duration
	dryRun      bool
	title       string
	message     string
	listPresets bool
}

func (c *cli) playCommand() *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a preset, a synthesized tone or an audio file",
		Long: `Play exactly one sound source and report the outcome.

Sources (exactly one is required):
  --preset NAME   embedded clip (see "kozmotic presets")
  --tone HZ       sine wave between 20 and 20000 Hz
  --file PATH     WAV, MP3, FLAC, OGG/Vorbis or AIFF file

Volume, repeat, interval, timeout and device default to the config file
and KOZMOTIC_* environment variables.`,
		Example: `  kozmotic play --preset chime
  kozmotic play --tone 880 --repeat 3 --interval 200ms
  kozmotic play --file ~/sounds/done.mp3 --volume 0.4 --timeout 5s
  kozmotic play --preset alert --dry-run --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlay(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.preset, "preset", "", "Embedded preset name")
	flags.Float64Var(&opts.tone, "tone", 0, "Tone frequency in Hz")
	flags.StringVar(&opts.file, "file", "", "Path to an audio file")
	flags.Float64("volume", 1.0, "Volume level (0.0 to 1.0)")
	flags.Int("repeat", 1, "Number of times to play the sound")
	flags.Duration("interval", 0, "Pause between repeats")
	flags.DurationVar(&opts.duration, "duration", 0, "Cap each repeat at this length (also sets the tone length)")
	flags.Duration("timeout", 0, "Abort the whole playback after this long (0 = no limit)")
	flags.String("device", "", "Audio output device name (empty = system default)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Validate and describe without opening the audio device")
	flags.StringVar(&opts.title, "title", "", "Desktop banner title posted after playback")
	flags.StringVar(&opts.message, "message", "", "Desktop banner message posted after playback")
	flags.BoolVar(&opts.listPresets, "list-presets", false, "List the embedded presets instead of playing")

	return cmd
}

func (c *cli) runPlay(cmd *cobra.Command, opts *playOptions) error {
	var sel sound.Selection
	if cmd.Flags().Changed("preset") {
		sel.Preset = &opts.preset
	}
	if cmd.Flags().Changed("tone") {
		sel.Tone = &opts.tone
	}
	if cmd.Flags().Changed("file") {
		sel.File = &opts.file
	}

	params := playback.Params{
		Volume:      c.cfg.Volume,
		Repeat:      c.cfg.Repeat,
		Interval:    c.cfg.Interval,
		DurationCap: opts.duration,
		Timeout:     c.cfg.Timeout,
		DryRun:      opts.dryRun,
		Device:      c.cfg.Device,
	}
	if opts.title != "" || opts.message != "" {
		params.Banner = &playback.Banner{Title: opts.title, Message: opts.message}
	}

	req := dispatch.Request{
		Selection:    sel,
		Params:       params,
		ToneDuration: c.cfg.ToneDuration,
		ListPresets:  opts.listPresets,
	}

	env, code := c.handler(params.Banner != nil).Handle(cmd.Context(), req)
	c.emit(env, code)
	return nil
}
