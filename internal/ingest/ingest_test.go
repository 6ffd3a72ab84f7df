package ingest

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"chispart/internal/core"
)

func TestImageDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	url, err := ImageDataURL(payload, "image/png", MaxImageBytesDesktop)
	if err != nil {
		t.Fatal(err)
	}
	prefix := "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("url = %q", url)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(payload) {
		t.Error("payload did not round trip")
	}
}

func TestImageDataURLRejections(t *testing.T) {
	kind := func(err error) core.ErrorKind {
		var gerr *core.GatewayError
		if errors.As(err, &gerr) {
			return gerr.Kind
		}
		return ""
	}

	if _, err := ImageDataURL(nil, "image/png", 0); kind(err) != core.KindFile {
		t.Errorf("empty image: %v", err)
	}
	if _, err := ImageDataURL([]byte("x"), "image/gif", 0); kind(err) != core.KindFile {
		t.Errorf("unsupported type: %v", err)
	}
	big := make([]byte, MaxImageBytesMobile+1)
	if _, err := ImageDataURL(big, "image/jpeg", MaxImageBytesMobile); kind(err) != core.KindFile {
		t.Errorf("oversize: %v", err)
	}
	// Same payload fits under the desktop cap.
	if _, err := ImageDataURL(big, "image/jpeg", MaxImageBytesDesktop); err != nil {
		t.Errorf("desktop cap rejected mobile-oversize image: %v", err)
	}
}

func TestDetectImageMIME(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	if got := DetectImageMIME(png, "whatever.bin"); got != "image/png" {
		t.Errorf("sniffed = %q", got)
	}
	// Unsniffable content falls back to the extension.
	if got := DetectImageMIME([]byte("not an image"), "photo.webp"); got != "image/webp" {
		t.Errorf("extension fallback = %q", got)
	}
	if got := DetectImageMIME([]byte("not an image"), "mystery"); got != "image/jpeg" {
		t.Errorf("default = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("a", 100)

	if got := Truncate(text, 100); got != text {
		t.Error("text at the cap must pass untouched")
	}
	got := Truncate(text+"b", 100)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Errorf("missing marker: %q", got)
	}
	if !strings.HasPrefix(got, text) || len(got) != 100+len(TruncationMarker) {
		t.Errorf("truncated = %q", got)
	}
	if got := Truncate(text, 0); got != text {
		t.Error("cap 0 must disable truncation")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// "ñ" is two bytes; a cap of 2 lands on its continuation byte.
	text := "añañ"
	got := Truncate(text, 2)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated output is not valid UTF-8: %q", got)
	}
	if want := "a" + TruncationMarker; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// A cap on a rune boundary cuts exactly there.
	if got := Truncate(text, 3); got != "añ"+TruncationMarker {
		t.Errorf("boundary cut = %q", got)
	}
}

func TestMaxCapsPerMode(t *testing.T) {
	if MaxPDFChars(false) != MaxPDFCharsDesktop || MaxPDFChars(true) != MaxPDFCharsMobile {
		t.Error("pdf caps wired to the wrong modes")
	}
	if MaxImageBytes(false) != MaxImageBytesDesktop || MaxImageBytes(true) != MaxImageBytesMobile {
		t.Error("image caps wired to the wrong modes")
	}
}

func TestFramePDFPrompt(t *testing.T) {
	got := FramePDFPrompt("contenido del documento", "¿de qué trata?")
	if !strings.Contains(got, "contenido del documento") {
		t.Error("frame lost the text")
	}
	if !strings.HasSuffix(got, "Question: ¿de qué trata?") {
		t.Errorf("frame = %q", got)
	}
}

func TestPDFTextUsesExtractor(t *testing.T) {
	orig := PDFExtractor
	defer func() { PDFExtractor = orig }()
	PDFExtractor = func(data []byte) (string, error) {
		return "extracted: " + string(data), nil
	}

	got, err := PDFText([]byte("raw"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "extracted: raw" {
		t.Errorf("got %q", got)
	}

	if _, err := PDFText(nil); err == nil {
		t.Error("empty pdf should be rejected")
	}

	PDFExtractor = func([]byte) (string, error) { return "", errors.New("broken xref") }
	_, err = PDFText([]byte("raw"))
	var gerr *core.GatewayError
	if !errors.As(err, &gerr) || gerr.Kind != core.KindFile {
		t.Errorf("extractor failure should map to file_error, got %v", err)
	}
}
