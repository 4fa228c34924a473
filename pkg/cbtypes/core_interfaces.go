// Package cbtypes defines core architectural interfaces for the cbfilter engine.
// This file contains the fundamental interfaces that define the system's structure:
// service registration and the narrow collaborator capabilities the engine consumes
// (clipboard access and secret protection).
package cbtypes

// Service defines the interface for cbfilter services that provide specific functionality.
// Services are initialized at startup and registered in the service registry.
type Service interface {
	Name() string
	Initialize() error
}

// ClipboardKind identifies what the system clipboard currently holds.
type ClipboardKind int

// Clipboard content kinds.
const (
	ClipboardNone ClipboardKind = iota
	ClipboardText
	ClipboardBitmap
)

// ClipboardSource provides read access to the system clipboard.
// The engine never touches the platform clipboard directly; it goes
// through this capability so the OS integration stays outside the engine.
type ClipboardSource interface {
	// DetectContentKind reports what the clipboard currently holds.
	DetectContentKind() ClipboardKind
	// ReadText returns the clipboard text, or an empty string when none.
	ReadText() string
	// ReadBitmap returns the clipboard image as PNG bytes, or an error
	// when the clipboard holds no readable image.
	ReadBitmap() (*ImageData, error)
}

// ClipboardSink provides write access to the system clipboard.
// Both methods fail loudly when the platform clipboard cannot be acquired.
type ClipboardSink interface {
	WriteText(text string) error
	WriteImage(img *ImageData) error
}

// SecretStore protects stored API keys. Tokens are prefixed so protected
// values can be told apart from legacy plaintext; Unprotect on an
// unprefixed value returns it unchanged. This is backward compatibility,
// not a security boundary.
type SecretStore interface {
	Protect(plaintext string) (string, error)
	Unprotect(stored string) (string, error)
}
