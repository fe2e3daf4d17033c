package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
	"gocv.io/x/gocv"
)

// ErrEmptyRegion is returned for a capture region with no area.
var ErrEmptyRegion = errors.New("capture region is empty")

// FrameSource produces one BGR bitmap per call. The caller closes the Mat.
type FrameSource interface {
	Capture() (gocv.Mat, error)
}

// Region is a screen rectangle in virtual-screen coordinates.
type Region struct {
	X, Y, Width, Height int
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyRegion, r.Width, r.Height)
	}
	return nil
}

// ScreenSource grabs a fixed region of the screen.
type ScreenSource struct {
	region Region
}

func NewScreenSource(region Region) *ScreenSource {
	return &ScreenSource{region: region}
}

func (s *ScreenSource) Region() Region {
	return s.region
}

func (s *ScreenSource) Capture() (gocv.Mat, error) {
	if err := s.region.Validate(); err != nil {
		return gocv.Mat{}, err
	}

	img, err := screenshot.CaptureRect(s.region.Rect())
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to capture screen: %w", err)
	}
	return FromImage(img)
}

// FileSource replays a saved screenshot, optionally cropped to a region.
type FileSource struct {
	path   string
	region *Region
}

func NewFileSource(path string, region *Region) *FileSource {
	return &FileSource{path: path, region: region}
}

func (s *FileSource) Capture() (gocv.Mat, error) {
	mat := gocv.IMRead(s.path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("failed to read image %s", s.path)
	}
	if s.region == nil {
		return mat, nil
	}
	defer mat.Close()

	if err := s.region.Validate(); err != nil {
		return gocv.Mat{}, err
	}
	rect := s.region.Rect().Intersect(image.Rect(0, 0, mat.Cols(), mat.Rows()))
	if rect.Empty() {
		return gocv.Mat{}, fmt.Errorf("%w: region outside %dx%d image", ErrEmptyRegion, mat.Cols(), mat.Rows())
	}

	roi := mat.Region(rect)
	defer roi.Close()
	return roi.Clone(), nil
}

// FromImage converts a Go image to a BGR Mat.
func FromImage(img image.Image) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.Mat{}, ErrEmptyRegion
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	return mat, nil
}
