package cbtypes

// ImageData is an owned PNG image produced or consumed by the engine.
// The engine works with encoded bytes; platform bitmap conversion stays
// with the clipboard collaborator.
type ImageData struct {
	PNG []byte
}

// APICallResult is the outcome of one template API call: either a
// non-empty text value or an owned image, keyed by the template's
// declared output kind. Never both.
type APICallResult struct {
	Text  string
	Image *ImageData
}

// Empty reports whether the call produced neither text nor image.
func (r APICallResult) Empty() bool {
	return r.Text == "" && r.Image == nil
}
