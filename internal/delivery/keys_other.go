//go:build !windows && !darwin

package delivery

import "github.com/micmonay/keybd_event"

const vkBackspace = keybd_event.VK_BACKSPACE
