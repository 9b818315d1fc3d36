package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ErrNoInputDevice means no usable audio source was found after falling
// through the whole resolution chain.
var ErrNoInputDevice = errors.New("no usable audio input device found")

// Device identifies an audio input. The UID is stable across reboots and is
// what configuration persists; the live handle is resolved at session start.
type Device struct {
	UID        string
	Name       string
	BuiltIn    bool
	Default    bool
	SampleRate float64

	info *portaudio.DeviceInfo
}

// Enumerator lists the currently present input devices.
type Enumerator interface {
	InputDevices() ([]Device, error)
}

// Resolve picks an input device: the preferred UID when present, else the
// system default, else the first built-in device. Pure lookup over one
// enumeration; device counts are small so linear scans are fine.
func Resolve(enum Enumerator, preferredUID string) (Device, error) {
	devices, err := enum.InputDevices()
	if err != nil {
		return Device{}, fmt.Errorf("enumerate input devices: %w", err)
	}

	if preferredUID != "" {
		for _, d := range devices {
			if d.UID == preferredUID {
				return d, nil
			}
		}
	}
	for _, d := range devices {
		if d.Default {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.BuiltIn {
			return d, nil
		}
	}
	return Device{}, ErrNoInputDevice
}
