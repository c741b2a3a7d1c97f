package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"portfolio-tracker/internal/config"
)

// CommandRunner runs an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DesktopNotifier shows notifications through the desktop environment:
// notify-send on Linux and osascript on macOS, optionally spoken with say.
type DesktopNotifier struct {
	enabled bool
	voice   bool
	goos    string
	run     CommandRunner
}

// NewDesktopNotifier creates a new DesktopNotifier for the current OS.
func NewDesktopNotifier(cfg config.DesktopConfig) *DesktopNotifier {
	return &DesktopNotifier{
		enabled: cfg.Enabled,
		voice:   cfg.Voice,
		goos:    runtime.GOOS,
		run:     execRunner,
	}
}

// WithRunner replaces the command runner and target OS.
func (d *DesktopNotifier) WithRunner(goos string, run CommandRunner) *DesktopNotifier {
	d.goos = goos
	d.run = run
	return d
}

// Name returns the name of the notifier.
func (d *DesktopNotifier) Name() string {
	return "desktop"
}

// IsEnabled returns whether the notifier is enabled.
func (d *DesktopNotifier) IsEnabled() bool {
	return d.enabled
}

// Send shows the notification.
func (d *DesktopNotifier) Send(ctx context.Context, n Notification) error {
	if !d.enabled {
		return nil
	}

	switch d.goos {
	case "linux", "freebsd", "openbsd":
		return d.run(ctx, "notify-send", "--app-name=portfolio-tracker", n.Title, n.Message)
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(n.Message), appleScriptString(n.Title))
		if err := d.run(ctx, "osascript", "-e", script); err != nil {
			return err
		}
		if d.voice {
			return d.run(ctx, "say", n.Title)
		}
		return nil
	default:
		return fmt.Errorf("desktop notifications are not supported on %s", d.goos)
	}
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
