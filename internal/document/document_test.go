package document

import (
	"context"
	"errors"
	"testing"
)

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		file        string
		contentType string
		data        string
		expect      string
	}{
		{name: "txt extension", file: "cv.txt", data: "  Go developer\n", expect: "Go developer"},
		{name: "markdown extension", file: "CV.MD", data: "# Jane\n- Go", expect: "# Jane\n- Go"},
		{name: "content type fallback", file: "upload", contentType: "text/plain; charset=utf-8", data: "Kubernetes", expect: "Kubernetes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(context.Background(), tt.file, tt.contentType, []byte(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestExtractUnsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "unknown extension", file: "cv.exe", data: []byte("MZ")},
		{name: "invalid utf-8", file: "cv.txt", data: []byte{0xff, 0xfe, 0xfd}},
		{name: "blank text", file: "cv.txt", data: []byte("   \n\t")},
		{name: "broken pdf", file: "cv.pdf", data: []byte("not a pdf")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(context.Background(), tt.file, "", tt.data)
			if !errors.Is(err, ErrUnsupportedInput) {
				t.Fatalf("expected ErrUnsupportedInput, got %v", err)
			}
		})
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Extract(ctx, "cv.txt", "", []byte("text")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
