//go:build darwin

package delivery

import "github.com/micmonay/keybd_event"

// The mac "delete" key is a backspace.
const vkBackspace = keybd_event.VK_DELETE
