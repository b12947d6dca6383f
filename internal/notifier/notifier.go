package notifier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/breki/kozmotic/internal/config"
	"github.com/breki/kozmotic/internal/logging"
	"github.com/breki/kozmotic/internal/platform"
)

// ErrDisabled is returned when desktop banners are turned off in the config
var ErrDisabled = errors.New("desktop notifications disabled")

// maxOSC9Length bounds the text written in one OSC 9 sequence
const maxOSC9Length = 200

// Indirections replaced in tests
var (
	beeepNotify = func(title, message, icon string) error {
		return beeep.Notify(title, message, icon)
	}
	openTTY = func() (io.WriteCloser, error) {
		return os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	}
)

// Notifier sends desktop banners
type Notifier struct {
	cfg *config.Config
}

// New creates a new notifier
func New(cfg *config.Config) *Notifier {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Notifier{
		cfg: cfg,
	}
}

// Notify posts a banner using the configured method.
// Methods: "osc9", "beeep", "auto" (default)
// In auto mode beeep is tried first and OSC 9 is used when it fails.
func (n *Notifier) Notify(title, message string) error {
	if !n.cfg.IsDesktopEnabled() {
		logging.Debug("Desktop notifications disabled, skipping")
		return ErrDisabled
	}

	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" {
		title = "kozmotic"
	}

	// Get app icon path if configured
	appIcon := n.cfg.Desktop.AppIcon
	if appIcon != "" && !platform.FileExists(appIcon) {
		logging.Warn("App icon not found: %s, using default", appIcon)
		appIcon = ""
	}

	switch n.cfg.Desktop.Method {
	case "osc9":
		// OSC9: Terminal escape sequence notification (iTerm2, kitty, etc.)
		return n.sendWithOSC9(title, message)

	case "beeep":
		return n.sendWithBeeep(title, message, appIcon)

	default:
		if err := n.sendWithBeeep(title, message, appIcon); err != nil {
			logging.Warn("beeep failed, falling back to OSC9: %v", err)
			if oscErr := n.sendWithOSC9(title, message); oscErr != nil {
				return fmt.Errorf("all notification methods failed: %w", errors.Join(err, oscErr))
			}
		}
		return nil
	}
}

// sendWithBeeep sends notification via beeep (cross-platform)
func (n *Notifier) sendWithBeeep(title, message, appIcon string) error {
	// Windows keeps one registry entry per AppName, so it stays fixed there.
	// Elsewhere a unique name stops banners from replacing each other.
	originalAppName := beeep.AppName
	if platform.IsWindows() {
		beeep.AppName = "kozmotic"
	} else {
		beeep.AppName = fmt.Sprintf("kozmotic-%d", time.Now().UnixNano())
	}
	defer func() {
		beeep.AppName = originalAppName
	}()

	if err := beeepNotify(title, message, appIcon); err != nil {
		return fmt.Errorf("beeep notify: %w", err)
	}

	logging.Debug("Desktop notification sent via beeep: title=%s", title)
	return nil
}

// sendWithOSC9 sends notification via OSC9 escape sequence
// Format: ESC ] 9 ; message ESC \
func (n *Notifier) sendWithOSC9(title, message string) error {
	tty, err := openTTY()
	if err != nil {
		return fmt.Errorf("failed to open /dev/tty: %w", err)
	}
	defer tty.Close()

	if _, err := io.WriteString(tty, osc9Sequence(title, message)); err != nil {
		return fmt.Errorf("failed to write OSC9: %w", err)
	}

	logging.Debug("Desktop notification sent via OSC9: title=%s", title)
	return nil
}

// osc9Sequence builds the escape sequence for a banner
func osc9Sequence(title, message string) string {
	text := title
	if message != "" {
		text = fmt.Sprintf("%s: %s", title, message)
	}

	// Control characters would terminate the sequence early
	text = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, text)

	if runes := []rune(text); len(runes) > maxOSC9Length {
		text = string(runes[:maxOSC9Length-3]) + "..."
	}

	return fmt.Sprintf("\033]9;%s\033\\", text)
}
