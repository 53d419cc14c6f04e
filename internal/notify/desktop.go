package notify

import (
	"context"
	"fmt"
	"os/exec"

	"slotwatch/internal/config"
	"slotwatch/internal/models"
)

// DesktopNotifier shells out to a system notification command
// (notify-send on Linux, osascript wrappers on macOS). The command
// receives the title and the body as its two arguments.
type DesktopNotifier struct {
	command string
}

func NewDesktopNotifier(cfg config.DesktopNotifyConfig) *DesktopNotifier {
	command := cfg.Command
	if command == "" {
		command = "notify-send"
	}
	return &DesktopNotifier{command: command}
}

func (d *DesktopNotifier) Name() string { return "desktop" }

func (d *DesktopNotifier) Notify(ctx context.Context, n models.Notification) error {
	cmd := exec.CommandContext(ctx, d.command, subject, renderText(n))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("desktop notify command: %w (%s)", err, string(out))
	}
	return nil
}
