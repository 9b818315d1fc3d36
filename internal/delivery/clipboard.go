package delivery

import "github.com/atotto/clipboard"

// SystemClipboard backs the Clipboard capability with the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) Contents() (string, error) {
	return clipboard.ReadAll()
}

func (SystemClipboard) SetContents(text string) error {
	return clipboard.WriteAll(text)
}
