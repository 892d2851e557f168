package files

import (
	"encoding/base64"
	"errors"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSize is the largest attachment accepted, in bytes.
const MaxSize = 10 << 20

var (
	ErrTooLarge        = errors.New("attachment exceeds size limit")
	ErrUnsupportedType = errors.New("attachment type not allowed")
	ErrMalformed       = errors.New("malformed attachment payload")
)

var allowedTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Decode turns a client file payload into an attachment. The payload is either a
// data URI ("data:image/png;base64,....") or a raw blob: standard base64 when it
// decodes as such, otherwise the bytes of the string itself.
func Decode(payload, name string) (Attachment, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Attachment{}, ErrMalformed
	}

	var (
		declared string
		data     []byte
		err      error
	)
	if strings.HasPrefix(payload, "data:") {
		declared, data, err = decodeDataURI(payload)
	} else {
		data, err = decodeRaw(payload)
	}
	if err != nil {
		return Attachment{}, err
	}
	if len(data) == 0 {
		return Attachment{}, ErrMalformed
	}
	if len(data) > MaxSize {
		return Attachment{}, ErrTooLarge
	}

	contentType := declared
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = baseType(mimetype.Detect(data).String())
	}
	if !allowedTypes[contentType] {
		return Attachment{}, ErrUnsupportedType
	}

	return Attachment{
		Name:        cleanName(name),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func decodeDataURI(uri string) (string, []byte, error) {
	header, body, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, ErrMalformed
	}

	isBase64 := strings.HasSuffix(header, ";base64")
	declared := baseType(strings.TrimSuffix(header, ";base64"))

	if !isBase64 {
		if len(body) > MaxSize*3 {
			return "", nil, ErrTooLarge
		}
		text, err := url.PathUnescape(body)
		if err != nil {
			return "", nil, ErrMalformed
		}
		return declared, []byte(text), nil
	}

	data, err := decodeBase64(body)
	return declared, data, err
}

func decodeBase64(body string) ([]byte, error) {
	if base64.StdEncoding.DecodedLen(len(body)) > MaxSize+3 {
		return nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
	}
	if err != nil {
		return nil, ErrMalformed
	}
	return data, nil
}

func decodeRaw(payload string) ([]byte, error) {
	data, err := decodeBase64(payload)
	if errors.Is(err, ErrMalformed) {
		if len(payload) > MaxSize {
			return nil, ErrTooLarge
		}
		return []byte(payload), nil
	}
	return data, err
}

func baseType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return parsed
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}
