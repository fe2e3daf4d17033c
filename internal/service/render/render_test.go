package render

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"testing"
)

func TestRenderer_PNG(t *testing.T) {
	r := NewRenderer(10)

	data, err := r.PNG("bankid.tok.0.089c386a")
	if err != nil {
		t.Fatalf("PNG failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}

	// Wersja 2 (25 modułów) + 2*4 strefy ciszy = 33 moduły
	width := img.Bounds().Dx()
	if width%10 != 0 || width < 330 {
		t.Errorf("Width = %d, expected a multiple of 10 of at least 330", width)
	}
	if img.Bounds().Dx() != img.Bounds().Dy() {
		t.Error("QR image should be square")
	}
}

func TestRenderer_Base64(t *testing.T) {
	r := NewRenderer(0)

	text, err := r.Base64("hello")
	if err != nil {
		t.Fatalf("Base64 failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Error("Decoded bytes are not a PNG")
	}
}

func TestRenderer_Deterministic(t *testing.T) {
	r := NewRenderer(10)

	a, _ := r.Base64("same")
	b, _ := r.Base64("same")
	if a != b {
		t.Error("Rendering the same payload twice should give the same image")
	}
}

func TestRenderer_EmptyPayload(t *testing.T) {
	if _, err := NewRenderer(10).PNG(""); err == nil {
		t.Error("Expected error for empty payload")
	}
}
