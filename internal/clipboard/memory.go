package clipboard

import (
	"fmt"
	"sync"

	"cbfilter/pkg/cbtypes"
)

// MemoryClipboard is an in-process clipboard used in tests and as a
// stand-in when the OS clipboard is unavailable.
type MemoryClipboard struct {
	mu    sync.Mutex
	text  string
	image []byte
}

// NewMemoryClipboard creates an empty MemoryClipboard.
func NewMemoryClipboard() *MemoryClipboard {
	return &MemoryClipboard{}
}

// SetText seeds the clipboard with text and clears any image.
func (m *MemoryClipboard) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.image = nil
}

// SetImage seeds the clipboard with PNG bytes and clears any text.
func (m *MemoryClipboard) SetImage(png []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.image = append([]byte(nil), png...)
	m.text = ""
}

// DetectContentKind reports what the clipboard currently holds.
func (m *MemoryClipboard) DetectContentKind() cbtypes.ClipboardKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case len(m.image) > 0:
		return cbtypes.ClipboardBitmap
	case m.text != "":
		return cbtypes.ClipboardText
	default:
		return cbtypes.ClipboardNone
	}
}

// ReadText returns the stored text.
func (m *MemoryClipboard) ReadText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// ReadBitmap returns the stored image.
func (m *MemoryClipboard) ReadBitmap() (*cbtypes.ImageData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.image) == 0 {
		return nil, fmt.Errorf("clipboard contains no image")
	}
	return &cbtypes.ImageData{PNG: append([]byte(nil), m.image...)}, nil
}

// WriteText stores text and clears any image.
func (m *MemoryClipboard) WriteText(text string) error {
	m.SetText(text)
	return nil
}

// WriteImage stores PNG bytes and clears any text.
func (m *MemoryClipboard) WriteImage(img *cbtypes.ImageData) error {
	if img == nil || len(img.PNG) == 0 {
		return fmt.Errorf("no image data to write")
	}
	m.SetImage(img.PNG)
	return nil
}
