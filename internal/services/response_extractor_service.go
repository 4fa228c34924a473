package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // response images are occasionally JPEG
	"image/png"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"cbfilter/internal/data/embedded"
	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// ResponseExtractorService pulls a text or image result out of an API
// response. It runs two independent strategies: a structured walk over
// the parsed JSON tree following the template's result path, and
// heuristic scans over the raw text for well-known field names when the
// path misses or the response shape is unexpected. The image strategy
// order is policy data, not control flow, because provider response
// shapes keep evolving.
type ResponseExtractorService struct {
	initialized bool
	strategies  []imageStrategy
}

// imageStrategy is one named way to locate base64 image data in a
// response.
type imageStrategy struct {
	name string
	fn   func(raw, path string) string
}

// NewResponseExtractorService creates a new ResponseExtractorService instance.
func NewResponseExtractorService() *ResponseExtractorService {
	return &ResponseExtractorService{}
}

// Name returns the service name "response_extractor" for registration.
func (r *ResponseExtractorService) Name() string {
	return "response_extractor"
}

// Initialize sets up the ResponseExtractorService, loading the image
// strategy order from the embedded policy table.
func (r *ResponseExtractorService) Initialize() error {
	available := map[string]func(raw, path string) string{
		"result-path": extractImageByPath,
		"b64-json":    func(raw, _ string) string { return scanB64JSON(raw) },
		"content":     func(raw, _ string) string { return stripDataURLPrefix(scanContent(raw)) },
		"chat-image":  func(raw, _ string) string { return scanChatImage(raw) },
	}

	var policy struct {
		ImageStrategies []string `yaml:"image_strategies"`
	}
	if err := yaml.Unmarshal(embedded.PolicyData, &policy); err != nil {
		logger.Warn("policy table parse failed, using built-in strategy order", "error", err)
	}
	names := policy.ImageStrategies
	if len(names) == 0 {
		names = []string{"result-path", "b64-json", "content", "chat-image"}
	}

	r.strategies = r.strategies[:0]
	for _, name := range names {
		fn, ok := available[name]
		if !ok {
			logger.Warn("unknown image extraction strategy", "strategy", name)
			continue
		}
		r.strategies = append(r.strategies, imageStrategy{name: name, fn: fn})
	}
	r.initialized = true
	logger.ServiceOperation("response_extractor", "initialize", "strategies", len(r.strategies))
	return nil
}

// Extract pulls the result out of raw according to the template's output
// kind and result path.
func (r *ResponseExtractorService) Extract(raw string, tpl *cbtypes.TemplateDefinition) (cbtypes.APICallResult, error) {
	if !r.initialized {
		return cbtypes.APICallResult{}, fmt.Errorf("response extractor service not initialized")
	}
	if tpl.Output == cbtypes.IOImage {
		img, err := r.ExtractImage(raw, tpl.ResultPath)
		if err != nil {
			return cbtypes.APICallResult{}, err
		}
		return cbtypes.APICallResult{Image: img}, nil
	}
	text := r.ExtractText(raw, tpl.ResultPath)
	if text == "" {
		return cbtypes.APICallResult{}, fmt.Errorf("response contains no text result")
	}
	return cbtypes.APICallResult{Text: text}, nil
}

// ExtractText returns the text result located by path, falling back to a
// heuristic scan for a "content" field. Empty when nothing is found.
func (r *ResponseExtractorService) ExtractText(raw, path string) string {
	var text string
	if path != "" {
		text, _ = ExtractByPath(raw, path)
	}
	if text == "" {
		text = scanContent(raw)
	}
	return text
}

// ExtractImage locates base64 image data using the configured strategy
// order and decodes the first non-empty candidate. A candidate that does
// not decode into an image is terminal for the call, not retried with
// later strategies.
func (r *ResponseExtractorService) ExtractImage(raw, path string) (*cbtypes.ImageData, error) {
	var b64 string
	for _, s := range r.strategies {
		b64 = s.fn(raw, path)
		if b64 != "" {
			logger.Debug("image candidate located", "strategy", s.name, "length", len(b64))
			break
		}
	}
	if b64 == "" {
		return nil, fmt.Errorf("response contains no image data")
	}
	img, err := decodeBase64Image(b64)
	if err != nil {
		return nil, fmt.Errorf("image data did not decode: %w", err)
	}
	return img, nil
}

// ExtractByPath walks a dot-separated path with optional bracketed
// indices (e.g. "choices[0].message.content") into the parsed JSON
// value. Any violation — empty segment, missing key, index out of
// bounds, type mismatch — yields "not found" rather than an error.
// A string leaf returns its value; any other leaf returns its compact
// re-encoding.
func ExtractByPath(raw, path string) (string, bool) {
	var root interface{}
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return "", false
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return "", false
		}
		key := part
		idx := -1
		if lb := strings.IndexByte(part, '['); lb >= 0 && strings.HasSuffix(part, "]") {
			key = part[:lb]
			n, err := strconv.Atoi(part[lb+1 : len(part)-1])
			if err != nil {
				return "", false
			}
			idx = n
		}
		if key != "" {
			obj, ok := cur.(map[string]interface{})
			if !ok {
				return "", false
			}
			val, ok := obj[key]
			if !ok {
				return "", false
			}
			cur = val
		}
		if idx >= 0 {
			arr, ok := cur.([]interface{})
			if !ok || idx >= len(arr) {
				return "", false
			}
			cur = arr[idx]
		}
	}
	if s, ok := cur.(string); ok {
		return s, true
	}
	encoded, err := json.Marshal(cur)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

// extractImageByPath resolves the result path and strips any data-URL
// wrapper from the value.
func extractImageByPath(raw, path string) string {
	if path == "" {
		return ""
	}
	value, _ := ExtractByPath(raw, path)
	return stripDataURLPrefix(value)
}

// stripDataURLPrefix removes a "data:image/...;base64," wrapper, keeping
// the bare base64 payload. Values without a data:image marker pass
// through untouched.
func stripDataURLPrefix(s string) string {
	if !strings.Contains(s, "data:image") {
		return s
	}
	if comma := strings.IndexByte(s, ','); comma >= 0 {
		return s[comma+1:]
	}
	return s
}

// scanContent scans the raw response text for a "content" field and
// returns its string value up to the next unescaped quote. Only the \n
// and \" escapes are unescaped; this scanner must keep working on
// partial or malformed bodies that a JSON parser rejects.
func scanContent(raw string) string {
	p := strings.Index(raw, `"content"`)
	if p < 0 {
		return ""
	}
	rest := raw[p+len(`"content"`):]
	q := strings.IndexByte(rest, '"')
	if q < 0 {
		return ""
	}
	rest = rest[q+1:]

	var out strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == '"' {
			break
		}
		if c == '\\' && i+1 < len(rest) {
			switch rest[i+1] {
			case 'n':
				out.WriteByte('\n')
				i++
				continue
			case '"':
				out.WriteByte('"')
				i++
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.String()
}

// scanB64JSON scans for a "b64_json" field and returns its string value,
// unescaping \", \\ and \/.
func scanB64JSON(raw string) string {
	p := strings.Index(raw, `"b64_json"`)
	if p < 0 {
		return ""
	}
	rest := raw[p+len(`"b64_json"`):]
	q := strings.IndexByte(rest, '"')
	if q < 0 {
		return ""
	}
	rest = rest[q+1:]

	var out strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == '"' {
			break
		}
		if c == '\\' && i+1 < len(rest) {
			switch rest[i+1] {
			case '"':
				out.WriteByte('"')
				i++
				continue
			case '\\':
				out.WriteByte('\\')
				i++
				continue
			case '/':
				out.WriteByte('/')
				i++
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.String()
}

// scanChatImage handles vision-style chat responses that deliver images
// as data URLs: it locates an "images" (or bare "image_url") object,
// descends to its url field, unescapes the value and strips the data-URL
// prefix.
func scanChatImage(raw string) string {
	anchor := strings.Index(raw, `"images"`)
	if anchor < 0 {
		anchor = strings.Index(raw, `"image_url"`)
		if anchor < 0 {
			return ""
		}
	}

	urlObj := strings.Index(raw[anchor:], `"image_url"`)
	if urlObj < 0 {
		urlObj = strings.Index(raw[anchor:], `"imageUrl"`)
	}
	if urlObj < 0 {
		return ""
	}
	rest := raw[anchor+urlObj:]

	urlField := strings.Index(rest, `"url"`)
	if urlField < 0 {
		return ""
	}
	rest = rest[urlField+len(`"url"`):]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return ""
	}
	rest = rest[colon+1:]
	open := strings.IndexByte(rest, '"')
	if open < 0 {
		return ""
	}
	rest = rest[open+1:]

	end := -1
	for i := 0; i < len(rest); i++ {
		if rest[i] == '"' && (i == 0 || rest[i-1] != '\\') {
			end = i
			break
		}
	}
	if end < 0 {
		return ""
	}
	value := unescapeJSONString(rest[:end])

	if comma := strings.IndexByte(value, ','); comma >= 0 {
		return value[comma+1:]
	}
	return value
}

// unescapeJSONString reverses the standard escapes the engine's
// templates can produce.
func unescapeJSONString(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				out.WriteByte('\\')
				i++
				continue
			case '"':
				out.WriteByte('"')
				i++
				continue
			case 'n':
				out.WriteByte('\n')
				i++
				continue
			case 'r':
				out.WriteByte('\r')
				i++
				continue
			case 't':
				out.WriteByte('\t')
				i++
				continue
			}
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

// decodeBase64Image decodes base64 image data and normalizes it to PNG.
func decodeBase64Image(b64 string) (*cbtypes.ImageData, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if format == "png" {
		return &cbtypes.ImageData{PNG: data}, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &cbtypes.ImageData{PNG: buf.Bytes()}, nil
}
