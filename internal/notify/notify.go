package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Notifier posts desktop notifications for user-visible failures. Disabled
// notifiers silently drop everything.
type Notifier struct {
	enabled bool
	log     *slog.Logger
}

func New(enabled bool, log *slog.Logger) *Notifier {
	return &Notifier{enabled: enabled, log: log.With(slog.String("component", "notify"))}
}

func (n *Notifier) Notify(title, body string) error {
	if !n.enabled {
		return nil
	}
	if err := beeep.Notify(title, body, ""); err != nil {
		n.log.Warn("desktop notification failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
