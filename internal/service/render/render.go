package render

import (
	"encoding/base64"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultPixelsPerModule = 10

// Renderer turns a payload into a QR code PNG. The quiet zone is the
// library default of four modules.
type Renderer struct {
	pixelsPerModule int
}

func NewRenderer(pixelsPerModule int) *Renderer {
	if pixelsPerModule <= 0 {
		pixelsPerModule = DefaultPixelsPerModule
	}
	return &Renderer{pixelsPerModule: pixelsPerModule}
}

// PNG encodes payload with low error correction.
func (r *Renderer) PNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("cannot render an empty payload")
	}

	code, err := qrcode.New(payload, qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	// Ujemny rozmiar oznacza piksele na moduł
	png, err := code.PNG(-r.pixelsPerModule)
	if err != nil {
		return nil, fmt.Errorf("failed to render PNG: %w", err)
	}
	return png, nil
}

// Base64 returns the PNG as standard base64 text for JSON transport.
func (r *Renderer) Base64(payload string) (string, error) {
	png, err := r.PNG(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
