package delivery

import (
	"fmt"
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

// SystemKeystroker synthesizes deletes and paste chords via the OS keyboard
// event APIs. Each keystroke is paced so the target application's event queue
// keeps up with bursts of deletes.
type SystemKeystroker struct {
	delay time.Duration
}

func NewSystemKeystroker(delay time.Duration) *SystemKeystroker {
	return &SystemKeystroker{delay: delay}
}

func (k *SystemKeystroker) SendDeleteKeystrokes(count int) error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("keyboard binding: %w", err)
	}
	kb.SetKeys(vkBackspace)
	for i := 0; i < count; i++ {
		if err := kb.Launching(); err != nil {
			return fmt.Errorf("backspace keystroke: %w", err)
		}
		if k.delay > 0 {
			time.Sleep(k.delay)
		}
	}
	return nil
}

func (k *SystemKeystroker) PasteKeystroke() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("keyboard binding: %w", err)
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	if err := kb.Launching(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	return nil
}
