// Package document turns uploaded CV files into plain UTF-8 text.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedInput is returned for documents whose type cannot be converted
// or which yield no text at all.
var ErrUnsupportedInput = errors.New("unsupported input")

type kind int

const (
	kindUnknown kind = iota
	kindPDF
	kindPlain
	kindOffice
)

var extensions = map[string]kind{
	".pdf":  kindPDF,
	".txt":  kindPlain,
	".md":   kindPlain,
	".docx": kindOffice,
	".doc":  kindOffice,
	".odt":  kindOffice,
	".rtf":  kindOffice,
	".html": kindOffice,
	".htm":  kindOffice,
	".xml":  kindOffice,
}

var mediaTypes = map[string]kind{
	"application/pdf": kindPDF,
	"text/plain":      kindPlain,
	"text/markdown":   kindPlain,
}

// Extract converts data to text. The file name extension decides the
// converter; the content type is used when the name carries no known extension.
func Extract(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(name))
	k := detect(ext, contentType)

	var (
		text string
		err  error
	)
	switch k {
	case kindPDF:
		text, err = extractPDF(data)
	case kindPlain:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid utf-8", ErrUnsupportedInput, name)
		}
		text = string(data)
	case kindOffice:
		text, err = extractOffice(ext, data)
	default:
		return "", fmt.Errorf("%w: file type %q", ErrUnsupportedInput, displayType(ext, contentType))
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text content found in %s", ErrUnsupportedInput, name)
	}

	return text, nil
}

func detect(ext, contentType string) kind {
	if k, ok := extensions[ext]; ok {
		return k
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return kindUnknown
	}
	return mediaTypes[mediaType]
}

func displayType(ext, contentType string) string {
	if ext != "" {
		return ext
	}
	if contentType != "" {
		return contentType
	}
	return "unknown"
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrUnsupportedInput, err)
	}

	var builder strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// one broken page should not lose the rest of the CV
			continue
		}

		builder.WriteString(text)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

func extractOffice(ext string, data []byte) (string, error) {
	mimeType := docconv.MimeTypeByExtension("file" + ext)
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, true)
	if err != nil {
		return "", fmt.Errorf("%w: convert %s: %v", ErrUnsupportedInput, ext, err)
	}
	return res.Body, nil
}
