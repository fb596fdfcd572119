// Package notifier provides desktop build notifications
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/kiln/kiln/pkg/logger"
)

// BuildNotifier sends desktop notifications for build milestones
type BuildNotifier struct {
	enabled bool
	sound   bool
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool
	Sound   bool
}

// New creates a new build notifier
func New(config Config, log logger.Logger) *BuildNotifier {
	return &BuildNotifier{
		enabled: config.Enabled,
		sound:   config.Sound,
		logger:  log,
	}
}

// NotifyBuildStart notifies that a build has started
func (n *BuildNotifier) NotifyBuildStart(itemCount int) {
	if !n.enabled {
		return
	}

	title := "🔥 Kiln"
	message := fmt.Sprintf("Building %d items...", itemCount)
	if itemCount == 1 {
		message = "Building 1 item..."
	}

	n.send(title, message, false)
}

// NotifyBuildSuccess notifies that a build succeeded
func (n *BuildNotifier) NotifyBuildSuccess(duration time.Duration, finished, skipped int) {
	if !n.enabled {
		return
	}

	title := "✅ Build Succeeded"
	message := fmt.Sprintf("%d built, %d up to date in %s", finished, skipped, formatDuration(duration))

	n.send(title, message, n.sound)
}

// NotifyBuildFailure notifies that a build failed
func (n *BuildNotifier) NotifyBuildFailure(failed int) {
	if !n.enabled {
		return
	}

	title := "❌ Build Failed"
	message := fmt.Sprintf("%d items failed", failed)
	if failed == 1 {
		message = "1 item failed"
	}

	n.send(title, message, n.sound)
}

// Private methods

func (n *BuildNotifier) send(title, message string, sound bool) {
	// beeep routes to the platform notifier (notification center,
	// notify-send, toast); failures never affect the build
	if err := beeep.Notify(title, message, ""); err != nil {
		if n.logger != nil {
			n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		}
	}

	if sound {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			if n.logger != nil {
				n.logger.Debug("Failed to play sound", logger.WithField("error", err))
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
