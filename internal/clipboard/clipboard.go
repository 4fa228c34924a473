// Package clipboard adapts the system clipboard to the engine's source
// and sink interfaces. Images cross the boundary as PNG bytes in both
// directions.
package clipboard

import (
	"fmt"
	"sync"

	xclipboard "golang.design/x/clipboard"

	"cbfilter/pkg/cbtypes"
)

// SystemClipboard reads from and writes to the OS clipboard. Init must
// succeed before any other method is used.
type SystemClipboard struct {
	initOnce sync.Once
	initErr  error
}

// NewSystemClipboard creates a new SystemClipboard instance.
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{}
}

// Init prepares the OS clipboard bindings. Safe to call more than once.
func (s *SystemClipboard) Init() error {
	s.initOnce.Do(func() {
		s.initErr = xclipboard.Init()
	})
	return s.initErr
}

// DetectContentKind reports what the clipboard currently holds. Images
// take precedence over text when both formats are present.
func (s *SystemClipboard) DetectContentKind() cbtypes.ClipboardKind {
	if len(xclipboard.Read(xclipboard.FmtImage)) > 0 {
		return cbtypes.ClipboardBitmap
	}
	if len(xclipboard.Read(xclipboard.FmtText)) > 0 {
		return cbtypes.ClipboardText
	}
	return cbtypes.ClipboardNone
}

// ReadText returns the clipboard text, or "" when none is available.
func (s *SystemClipboard) ReadText() string {
	return string(xclipboard.Read(xclipboard.FmtText))
}

// ReadBitmap returns the clipboard image as PNG bytes.
func (s *SystemClipboard) ReadBitmap() (*cbtypes.ImageData, error) {
	data := xclipboard.Read(xclipboard.FmtImage)
	if len(data) == 0 {
		return nil, fmt.Errorf("clipboard contains no image")
	}
	return &cbtypes.ImageData{PNG: data}, nil
}

// WriteText places text on the clipboard.
func (s *SystemClipboard) WriteText(text string) error {
	xclipboard.Write(xclipboard.FmtText, []byte(text))
	return nil
}

// WriteImage places a PNG image on the clipboard.
func (s *SystemClipboard) WriteImage(img *cbtypes.ImageData) error {
	if img == nil || len(img.PNG) == 0 {
		return fmt.Errorf("no image data to write")
	}
	xclipboard.Write(xclipboard.FmtImage, img.PNG)
	return nil
}
