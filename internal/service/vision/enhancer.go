package vision

import (
	"fmt"
	"image"

	"qrrelay/internal/config"
	"qrrelay/internal/logger"

	"gocv.io/x/gocv"
)

// Variant names in the order Enhance produces them.
const (
	VariantGray           = "gray"
	VariantThreshold      = "threshold"
	VariantThresholdClean = "threshold_clean"
	VariantBandMask       = "band_mask"
	VariantBandMaskClean  = "band_mask_clean"
	VariantCLAHE          = "clahe"
	VariantInverted       = "inverted"
	VariantEdges          = "edges"
)

// Variant is one transformed copy of the input bitmap.
type Variant struct {
	Name string
	Mat  gocv.Mat
}

// Variants is the ordered output of Enhance. The caller owns the Mats.
type Variants []Variant

// Get returns the Mat produced under name.
func (v Variants) Get(name string) (gocv.Mat, bool) {
	for _, item := range v {
		if item.Name == name {
			return item.Mat, true
		}
	}
	return gocv.Mat{}, false
}

// Close releases every Mat.
func (v Variants) Close() {
	for _, item := range v {
		item.Mat.Close()
	}
}

// Enhancer produces the fixed sequence of transforms tried by the cascade.
type Enhancer struct {
	band   config.HueBand
	logger *logger.Logger
}

func NewEnhancer(band config.HueBand, logger *logger.Logger) *Enhancer {
	return &Enhancer{band: band, logger: logger}
}

type enhanceStep struct {
	name      string
	colorOnly bool
	run       func(dst *gocv.Mat) error
}

// Enhance returns, in order: grayscale, adaptive threshold, threshold
// after close/open, inverted hue mask, hue mask after close/open, CLAHE,
// inverted grayscale and dilated edges. The two hue steps need a colour
// input. src is never modified. When a transform fails the variants made
// so far are returned; only an unreadable src yields none.
func (e *Enhancer) Enhance(src gocv.Mat) Variants {
	gray, err := grayscale(src)
	if err != nil {
		e.logger.Warning("Enhancer could not convert frame to grayscale: %v", err)
		return nil
	}
	out := Variants{{Name: VariantGray, Mat: gray}}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()

	steps := []enhanceStep{
		{name: VariantThreshold, run: func(dst *gocv.Mat) error {
			return gocv.AdaptiveThreshold(gray, dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)
		}},
		{name: VariantThresholdClean, run: func(dst *gocv.Mat) error {
			prev, _ := out.Get(VariantThreshold)
			return closeOpen(prev, dst, kernel)
		}},
		{name: VariantBandMask, colorOnly: true, run: func(dst *gocv.Mat) error {
			mask := gocv.NewMat()
			defer mask.Close()
			if err := bandMask(src, e.band, &mask); err != nil {
				return err
			}
			return gocv.BitwiseNot(mask, dst)
		}},
		{name: VariantBandMaskClean, colorOnly: true, run: func(dst *gocv.Mat) error {
			prev, _ := out.Get(VariantBandMask)
			return closeOpen(prev, dst, kernel)
		}},
		{name: VariantCLAHE, run: func(dst *gocv.Mat) error {
			clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
			defer clahe.Close()
			return clahe.Apply(gray, dst)
		}},
		{name: VariantInverted, run: func(dst *gocv.Mat) error {
			return gocv.BitwiseNot(gray, dst)
		}},
		{name: VariantEdges, run: func(dst *gocv.Mat) error {
			edges := gocv.NewMat()
			defer edges.Close()
			if err := gocv.Canny(gray, &edges, 100, 200); err != nil {
				return err
			}
			return gocv.Dilate(edges, dst, kernel)
		}},
	}

	color := isColor(src)
	for _, step := range steps {
		if step.colorOnly && !color {
			continue
		}

		dst := gocv.NewMat()
		if err := step.run(&dst); err != nil {
			dst.Close()
			e.logger.Warning("Enhancement %s failed, keeping %d variant(s): %v", step.name, len(out), err)
			break
		}
		out = append(out, Variant{Name: step.name, Mat: dst})
	}

	return out
}

func isColor(m gocv.Mat) bool {
	return m.Channels() == 3
}

// grayscale returns a new single-channel copy of src.
func grayscale(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty bitmap")
	}

	if src.Channels() == 1 {
		return src.Clone(), nil
	}

	gray := gocv.NewMat()
	var err error
	switch src.Channels() {
	case 3:
		err = gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	case 4:
		err = gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		err = fmt.Errorf("unsupported channel count %d", src.Channels())
	}
	if err != nil {
		gray.Close()
		return gocv.Mat{}, err
	}
	return gray, nil
}

// closeOpen removes speckles: morphological close then open.
func closeOpen(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error {
	closed := gocv.NewMat()
	defer closed.Close()

	if err := gocv.MorphologyEx(src, &closed, gocv.MorphClose, kernel); err != nil {
		return err
	}
	return gocv.MorphologyEx(closed, dst, gocv.MorphOpen, kernel)
}

// bandMask writes a binary mask of the pixels of a BGR src that fall in
// any of the band's HSV ranges.
func bandMask(src gocv.Mat, band config.HueBand, dst *gocv.Mat) error {
	if len(band.Ranges) == 0 {
		return fmt.Errorf("band %q has no ranges", band.Name)
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV); err != nil {
		return err
	}

	for i, r := range band.Ranges {
		lower := gocv.NewScalar(r.Lower[0], r.Lower[1], r.Lower[2], 0)
		upper := gocv.NewScalar(r.Upper[0], r.Upper[1], r.Upper[2], 0)

		if i == 0 {
			if err := gocv.InRangeWithScalar(hsv, lower, upper, dst); err != nil {
				return err
			}
			continue
		}

		part := gocv.NewMat()
		err := gocv.InRangeWithScalar(hsv, lower, upper, &part)
		if err == nil {
			err = gocv.BitwiseOr(*dst, part, dst)
		}
		part.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
