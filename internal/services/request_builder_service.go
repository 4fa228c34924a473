package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cbfilter/internal/logger"
	"cbfilter/pkg/cbtypes"
)

// defaultEndpointPath is used when a template declares no endpoint
// fragment at all.
const defaultEndpointPath = "/v1/chat/completions"

// Endpoint is a resolved request target.
type Endpoint struct {
	Host   string
	Path   string
	Secure bool
}

// ResolveEndpoint normalizes a server base URL and a template endpoint
// fragment into host, path and scheme. A fragment that is itself an
// absolute URL replaces the server base entirely; otherwise it is
// appended to the base. A path segment embedded in the host string is
// extracted and prepended to the path. The result is invalid only when
// the resolved host is empty.
func ResolveEndpoint(serverBase, fragment string) (Endpoint, bool) {
	host := serverBase
	path := fragment
	if path == "" {
		path = defaultEndpointPath
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		host = path
		path = ""
	}
	secure := true
	if strings.HasPrefix(host, "https://") {
		host = host[len("https://"):]
	} else if strings.HasPrefix(host, "http://") {
		host = host[len("http://"):]
		secure = false
	}
	if slash := strings.IndexByte(host, '/'); slash >= 0 {
		path = host[slash:] + path
		host = host[:slash]
	}
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	return Endpoint{Host: host, Path: path, Secure: secure}, host != ""
}

// BuiltRequest is the rendered request ready for the transport.
type BuiltRequest struct {
	Endpoint Endpoint
	Headers  []HeaderLine
	Body     []byte
}

// RequestBuilderService renders a template definition plus runtime
// values into a concrete request: endpoint and header values are
// substituted without JSON escaping, the payload with JSON escaping.
// A header value declaring multipart/form-data switches the body to
// multipart encoding with a random boundary.
type RequestBuilderService struct {
	initialized  bool
	placeholders *PlaceholderService
}

// NewRequestBuilderService creates a new RequestBuilderService instance.
func NewRequestBuilderService(placeholders *PlaceholderService) *RequestBuilderService {
	return &RequestBuilderService{placeholders: placeholders}
}

// Name returns the service name "request_builder" for registration.
func (r *RequestBuilderService) Name() string {
	return "request_builder"
}

// Initialize sets up the RequestBuilderService for operation.
func (r *RequestBuilderService) Initialize() error {
	if r.placeholders == nil {
		return fmt.Errorf("request builder requires a placeholder service")
	}
	r.initialized = true
	logger.ServiceOperation("request_builder", "initialize", "service ready")
	return nil
}

// Build renders the request for one template call against serverBase.
func (r *RequestBuilderService) Build(tpl *cbtypes.TemplateDefinition, serverBase string, ctx PlaceholderContext) (BuiltRequest, error) {
	if !r.initialized {
		return BuiltRequest{}, fmt.Errorf("request builder service not initialized")
	}

	fragment := r.placeholders.Substitute(tpl.Endpoint, ctx, false)
	endpoint, ok := ResolveEndpoint(serverBase, fragment)
	if !ok {
		return BuiltRequest{}, fmt.Errorf("cannot resolve endpoint from %q and %q", serverBase, fragment)
	}

	headers := make([]HeaderLine, 0, len(tpl.Headers))
	multipart := false
	for _, h := range tpl.Headers {
		value := r.placeholders.Substitute(h.Value, ctx, false)
		headers = append(headers, HeaderLine{Key: h.Key, Value: value})
		if containsFold(value, "multipart/form-data") {
			multipart = true
		}
	}

	var body []byte
	if multipart {
		boundary := "----cbfilter-" + uuid.NewString()
		for i := range headers {
			if containsFold(headers[i].Value, "multipart/form-data") {
				headers[i].Value += "; boundary=" + boundary
			}
		}
		body = buildMultipartBody(boundary, ctx.Model.ModelName, ctx.Prompt, ctx.ImageB64)
	} else {
		body = []byte(r.placeholders.Substitute(tpl.Payload, ctx, true))
	}

	return BuiltRequest{Endpoint: endpoint, Headers: headers, Body: body}, nil
}

// buildMultipartBody constructs the multipart/form-data body with model
// and prompt text parts and an optional PNG image part. The part layout
// is exactly what the supported providers expect, which is why this is
// written out instead of going through mime/multipart.
func buildMultipartBody(boundary, model, prompt, imageB64 string) []byte {
	var img []byte
	if imageB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(imageB64)
		if err != nil {
			logger.Warn("multipart image decode failed", "error", err)
		} else {
			img = decoded
		}
	}

	var b bytes.Buffer
	addText := func(name, value string) {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Disposition: form-data; name=\"" + name + "\"\r\n\r\n")
		b.WriteString(value + "\r\n")
	}
	addText("model", model)
	addText("prompt", prompt)
	if len(img) > 0 {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Disposition: form-data; name=\"image\"; filename=\"image.png\"\r\n")
		b.WriteString("Content-Type: image/png\r\n\r\n")
		b.Write(img)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return b.Bytes()
}

func containsFold(hay, needle string) bool {
	return strings.Contains(strings.ToLower(hay), strings.ToLower(needle))
}
