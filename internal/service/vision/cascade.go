package vision

import (
	"fmt"
	"image"

	"qrrelay/internal/config"
	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/service/token"

	"gocv.io/x/gocv"
)

// scaleStep is one resize factor tried by the primary decoder.
type scaleStep struct {
	factor float64
	label  string
}

var scaleSteps = []scaleStep{
	{1.5, "1.5"},
	{2.0, "2.0"},
	{0.75, "0.75"},
}

// Cascade tries the registered decoders over a fixed list of bitmap
// variants and stops at the first hit. It is driven by a single scanner
// goroutine; the gocv decoders are not safe for concurrent use.
type Cascade struct {
	decoders  *Registry
	enhancer  *Enhancer
	colorPass config.HueBand
	logger    *logger.Logger
}

func NewCascade(decoders *Registry, enhancer *Enhancer, colorPass config.HueBand, logger *logger.Logger) *Cascade {
	return &Cascade{
		decoders:  decoders,
		enhancer:  enhancer,
		colorPass: colorPass,
		logger:    logger,
	}
}

// Detect decodes a QR code from frame. frame is not modified; a BGRA
// frame is converted to BGR first.
// Rotating-code payloads are reduced to their token in Payload; Raw
// keeps the decoded text.
func (c *Cascade) Detect(frame gocv.Mat) (dto.DetectionResult, bool) {
	if frame.Empty() {
		return dto.DetectionResult{}, false
	}

	// BGRA z niektórych źródeł, reszta kaskady zakłada BGR
	if frame.Channels() == 4 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		if err := gocv.CvtColor(frame, &bgr, gocv.ColorBGRAToBGR); err != nil {
			c.logger.Warning("Could not convert BGRA frame: %v", err)
			return dto.DetectionResult{}, false
		}
		frame = bgr
	}

	res, ok := c.detect(frame)
	if !ok {
		return dto.DetectionResult{}, false
	}

	res.Payload = token.Normalize(res.Raw)
	return res, true
}

func (c *Cascade) detect(frame gocv.Mat) (dto.DetectionResult, bool) {
	primary := c.decoders.Primary
	secondary := c.decoders.Secondary

	// 1-3: bitmap bez zmian
	for _, d := range []Decoder{primary, secondary, c.decoders.Tertiary} {
		if d == nil {
			continue
		}
		if res, ok := try(d, frame, d.Name()); ok {
			return res, true
		}
	}

	// 4: warianty z enhancera
	variants := c.enhancer.Enhance(frame)
	defer variants.Close()
	for i, v := range variants {
		if res, ok := try(primary, v.Mat, fmt.Sprintf("%s_enhanced_%d", primary.Name(), i)); ok {
			return res, true
		}
		if res, ok := try(secondary, v.Mat, fmt.Sprintf("%s_enhanced_%d", secondary.Name(), i)); ok {
			return res, true
		}
	}

	// 5: skalowanie
	for _, s := range scaleSteps {
		if res, ok := c.tryScaled(frame, s); ok {
			return res, true
		}
	}

	// 6: kolor
	if isColor(frame) {
		return c.tryColorPass(frame)
	}
	return dto.DetectionResult{}, false
}

func (c *Cascade) tryScaled(frame gocv.Mat, s scaleStep) (dto.DetectionResult, bool) {
	scaled := gocv.NewMat()
	defer scaled.Close()

	if err := gocv.Resize(frame, &scaled, image.Point{}, s.factor, s.factor, gocv.InterpolationCubic); err != nil {
		c.logger.Warning("Resize x%s failed: %v", s.label, err)
		return dto.DetectionResult{}, false
	}

	primary := c.decoders.Primary
	res, ok := try(primary, scaled, fmt.Sprintf("%s_scaled_%s", primary.Name(), s.label))
	if !ok {
		return dto.DetectionResult{}, false
	}
	res.Region = ScalePoints(res.Region, 1/s.factor)
	return res, true
}

// tryColorPass isolates the accent colour: mask, keep masked pixels,
// grayscale, binarise, invert.
func (c *Cascade) tryColorPass(frame gocv.Mat) (dto.DetectionResult, bool) {
	inverted := gocv.NewMat()
	defer inverted.Close()

	if err := isolateBand(frame, c.colorPass, &inverted); err != nil {
		c.logger.Warning("Colour pass failed: %v", err)
		return dto.DetectionResult{}, false
	}

	primary := c.decoders.Primary
	secondary := c.decoders.Secondary
	if res, ok := try(primary, inverted, primary.Name()+"_color"); ok {
		return res, true
	}
	if res, ok := try(secondary, inverted, secondary.Name()+"_color"); ok {
		return res, true
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	if err := gocv.Dilate(inverted, &dilated, kernel); err != nil {
		c.logger.Warning("Colour pass dilate failed: %v", err)
		return dto.DetectionResult{}, false
	}
	return try(primary, dilated, primary.Name()+"_color_dilated")
}

func isolateBand(frame gocv.Mat, band config.HueBand, dst *gocv.Mat) error {
	mask := gocv.NewMat()
	defer mask.Close()
	if err := bandMask(frame, band, &mask); err != nil {
		return err
	}

	masked := gocv.NewMat()
	defer masked.Close()
	if err := gocv.BitwiseAndWithMask(frame, frame, &masked, mask); err != nil {
		return err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(masked, &gray, gocv.ColorBGRToGray); err != nil {
		return err
	}

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 10, 255, gocv.ThresholdBinary)

	return gocv.BitwiseNot(binary, dst)
}

func try(d Decoder, img gocv.Mat, tag string) (dto.DetectionResult, bool) {
	if d == nil {
		return dto.DetectionResult{}, false
	}

	decoded, ok := d.Decode(img)
	if !ok || decoded.Text == "" {
		return dto.DetectionResult{}, false
	}
	return dto.DetectionResult{
		Raw:         decoded.Text,
		StrategyTag: tag,
		Region:      decoded.Points,
	}, true
}

// ScalePoints multiplies every point by factor.
func ScalePoints(points []image.Point, factor float64) []image.Point {
	if points == nil {
		return nil
	}

	out := make([]image.Point, len(points))
	for i, p := range points {
		out[i] = image.Pt(int(float64(p.X)*factor), int(float64(p.Y)*factor))
	}
	return out
}
