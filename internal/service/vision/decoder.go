package vision

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"qrrelay/internal/logger"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// WeChat detector model files expected in the model directory.
const (
	WeChatDetectProto = "detect.prototxt"
	WeChatDetectModel = "detect.caffemodel"
	WeChatSRProto     = "sr.prototxt"
	WeChatSRModel     = "sr.caffemodel"
)

// Decoded is the text of one code and its corners, when the decoder reports them.
type Decoded struct {
	Text   string
	Points []image.Point
}

// Decoder reads a single QR code from a bitmap. A miss and an internal
// decoder error look the same to the caller.
type Decoder interface {
	Name() string
	Decode(img gocv.Mat) (Decoded, bool)
}

// Registry holds the decoders available at runtime. Tertiary is nil
// when the logo-tolerant decoder could not be set up.
type Registry struct {
	Primary   Decoder
	Secondary Decoder
	Tertiary  Decoder
}

// NewRegistry builds the decoder set once. The WeChat decoder is only
// registered when all four model files exist in modelDir.
func NewRegistry(modelDir string, logger *logger.Logger) *Registry {
	reg := &Registry{
		Primary:   NewOpenCVDecoder(),
		Secondary: NewZXingDecoder(),
	}

	if modelDir == "" {
		logger.Info("WeChat decoder disabled: no model directory configured")
		return reg
	}

	wechat, err := NewWeChatDecoder(modelDir)
	if err != nil {
		logger.Warning("WeChat decoder unavailable: %v", err)
		return reg
	}

	reg.Tertiary = wechat
	logger.Info("WeChat decoder loaded from %s", modelDir)
	return reg
}

// Names lists registered decoders in priority order.
func (r *Registry) Names() []string {
	var names []string
	for _, d := range []Decoder{r.Primary, r.Secondary, r.Tertiary} {
		if d != nil {
			names = append(names, d.Name())
		}
	}
	return names
}

// Close releases native resources held by the decoders.
func (r *Registry) Close() {
	for _, d := range []Decoder{r.Primary, r.Secondary, r.Tertiary} {
		if c, ok := d.(interface{ Close() error }); ok {
			c.Close()
		}
	}
}

// OpenCVDecoder wraps gocv's QRCodeDetector. Not safe for concurrent use.
type OpenCVDecoder struct {
	detector gocv.QRCodeDetector
}

func NewOpenCVDecoder() *OpenCVDecoder {
	return &OpenCVDecoder{detector: gocv.NewQRCodeDetector()}
}

func (d *OpenCVDecoder) Name() string { return "opencv" }

func (d *OpenCVDecoder) Decode(img gocv.Mat) (Decoded, bool) {
	if img.Empty() {
		return Decoded{}, false
	}

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	text := d.detector.DetectAndDecode(img, &points, &straight)
	if text == "" {
		return Decoded{}, false
	}
	return Decoded{Text: text, Points: cornerPoints(points)}, true
}

func (d *OpenCVDecoder) Close() error {
	return d.detector.Close()
}

// cornerPoints reads the 1x4 CV_32FC2 corner matrix returned by the detector.
func cornerPoints(points gocv.Mat) []image.Point {
	if points.Empty() {
		return nil
	}

	var out []image.Point
	for i := 0; i < points.Cols(); i++ {
		v := points.GetVecfAt(0, i)
		if len(v) < 2 {
			return nil
		}
		out = append(out, image.Pt(int(v[0]), int(v[1])))
	}
	return out
}

// ZXingDecoder is the pure-Go gozxing QR reader.
type ZXingDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (d *ZXingDecoder) Name() string { return "zxing" }

func (d *ZXingDecoder) Decode(img gocv.Mat) (Decoded, bool) {
	if img.Empty() {
		return Decoded{}, false
	}

	goImg, err := img.ToImage()
	if err != nil {
		return Decoded{}, false
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(goImg)
	if err != nil {
		return Decoded{}, false
	}

	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil || result.GetText() == "" {
		return Decoded{}, false
	}

	var pts []image.Point
	for _, p := range result.GetResultPoints() {
		pts = append(pts, image.Pt(int(p.GetX()), int(p.GetY())))
	}
	return Decoded{Text: result.GetText(), Points: pts}, true
}

// WeChatDecoder uses the CNN based detector from opencv_contrib, which
// copes with logos drawn over the code.
type WeChatDecoder struct {
	detector *contrib.WeChatQRCode
}

// NewWeChatDecoder loads the detector models from dir.
func NewWeChatDecoder(dir string) (*WeChatDecoder, error) {
	paths := make([]string, 0, 4)
	for _, name := range []string{WeChatDetectProto, WeChatDetectModel, WeChatSRProto, WeChatSRModel} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("model file %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	detector := contrib.NewWeChatQRCode(paths[0], paths[1], paths[2], paths[3])
	if detector == nil {
		return nil, fmt.Errorf("failed to create WeChat detector")
	}
	return &WeChatDecoder{detector: detector}, nil
}

func (d *WeChatDecoder) Name() string { return "wechat" }

func (d *WeChatDecoder) Decode(img gocv.Mat) (Decoded, bool) {
	if img.Empty() {
		return Decoded{}, false
	}

	var points []gocv.Mat
	texts := d.detector.DetectAndDecode(img, &points)
	defer func() {
		for _, p := range points {
			p.Close()
		}
	}()

	for i, text := range texts {
		if text == "" {
			continue
		}
		var pts []image.Point
		if i < len(points) {
			pts = rowPoints(points[i])
		}
		return Decoded{Text: text, Points: pts}, true
	}
	return Decoded{}, false
}

// rowPoints reads a 4x2 CV_32F corner matrix.
func rowPoints(m gocv.Mat) []image.Point {
	if m.Empty() || m.Cols() < 2 {
		return nil
	}

	out := make([]image.Point, 0, m.Rows())
	for r := 0; r < m.Rows(); r++ {
		out = append(out, image.Pt(int(m.GetFloatAt(r, 0)), int(m.GetFloatAt(r, 1))))
	}
	return out
}
