package objectstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Format selects how object content is represented to the caller.
type Format string

const (
	// FormatText returns the object as a UTF-8 string.
	FormatText Format = "text"
	// FormatJSON parses the object as a JSON document.
	FormatJSON Format = "json"
	// FormatBase64 returns the object as a base64 data URI.
	FormatBase64 Format = "base64"
)

// ParseFormat accepts the format names used by the file browser. The empty
// string means text and "structured" is an alias for json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json", "structured":
		return FormatJSON, nil
	case "base64":
		return FormatBase64, nil
	default:
		return "", fmt.Errorf("unknown content format %q", s)
	}
}

// Content is decoded object content. Exactly one of Text, Document and
// DataURI is meaningful, according to Format.
type Content struct {
	Format      Format
	ContentType string
	Text        string
	Document    interface{}
	DataURI     string
	Info        ObjectInfo
}

// Value returns the representation selected by Format.
func (c *Content) Value() interface{} {
	switch c.Format {
	case FormatJSON:
		return c.Document
	case FormatBase64:
		return c.DataURI
	default:
		return c.Text
	}
}

// DecodeContent converts raw object bytes into the requested format.
func DecodeContent(format Format, data []byte, contentType string) (*Content, error) {
	content := &Content{Format: format, ContentType: contentType}

	switch format {
	case FormatText:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("object is not valid UTF-8 text")
		}
		content.Text = string(data)
	case FormatJSON:
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON document: %w", err)
		}
		content.Document = doc
	case FormatBase64:
		mediaType := baseMediaType(contentType)
		if mediaType == "" {
			mediaType = baseMediaType(mimetype.Detect(data).String())
		}
		content.DataURI = DataURI(mediaType, data)
	default:
		return nil, fmt.Errorf("unknown content format %q", format)
	}

	return content, nil
}

// EncodeContent is the inverse of DecodeContent. It returns the bytes to
// store and, when the value declares one, a content type.
func EncodeContent(format Format, value interface{}) ([]byte, string, error) {
	switch format {
	case FormatText:
		switch v := value.(type) {
		case string:
			return []byte(v), "", nil
		case []byte:
			return v, "", nil
		default:
			return nil, "", fmt.Errorf("text content must be a string, got %T", value)
		}
	case FormatJSON:
		var raw []byte
		switch v := value.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		case json.RawMessage:
			raw = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, "", fmt.Errorf("failed to encode JSON document: %w", err)
			}
			return data, "application/json", nil
		}
		if !json.Valid(raw) {
			return nil, "", fmt.Errorf("content is not a valid JSON document")
		}
		return raw, "application/json", nil
	case FormatBase64:
		s, ok := value.(string)
		if !ok {
			return nil, "", fmt.Errorf("base64 content must be a string, got %T", value)
		}
		return ParseDataURI(s)
	default:
		return nil, "", fmt.Errorf("unknown content format %q", format)
	}
}

// DataURI renders data as an RFC 2397 base64 data URI.
func DataURI(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI decodes either a base64 data URI or a bare base64 string.
func ParseDataURI(s string) ([]byte, string, error) {
	payload := strings.TrimSpace(s)
	mediaType := ""

	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		mediaType = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return data, mediaType, nil
}

// DetectContentType guesses a content type from the key's extension, then
// from the content itself.
func DetectContentType(key string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}

func baseMediaType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(base)
}
