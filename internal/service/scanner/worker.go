package scanner

import (
	"context"
	"fmt"
	"image"
	"time"

	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/service/capture"
	"qrrelay/internal/service/gate"

	"gocv.io/x/gocv"
)

// Fallback frame size tried when the full frame yields nothing.
const (
	DownsampleWidth  = 320
	DownsampleHeight = 240
	downsamplePrefix = "downsampled_"
)

// State of the last scan iteration.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateSuppressed
	StateSent
	StateSendFailed
	StateCaptureFailed
	StateDecodeFailed
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateSuppressed:
		return "detected (unchanged)"
	case StateSent:
		return "sent"
	case StateSendFailed:
		return "send failed"
	case StateCaptureFailed:
		return "capture failed"
	case StateDecodeFailed:
		return "decode failed"
	default:
		return "idle"
	}
}

// Status is what the presentation loop learns after each iteration.
type Status struct {
	State   State
	Payload string
	Method  string
	Err     error
	At      time.Time
}

// Detector finds a code in a frame.
type Detector interface {
	Detect(frame gocv.Mat) (dto.DetectionResult, bool)
}

// Sender relays a decoded payload to the server.
type Sender interface {
	SendScan(payload, method string) error
}

// Worker runs capture, detection, change gating and relay on one goroutine.
// It never touches presentation state; it only publishes Status values.
type Worker struct {
	source   capture.FrameSource
	detector Detector
	gate     *gate.ChangeGate
	relay    Sender
	interval time.Duration
	backoff  time.Duration
	status   chan Status
	now      func() time.Time
	logger   *logger.Logger
}

// Options tunes the loop timing. Zero values pick the defaults.
type Options struct {
	Interval time.Duration
	Backoff  time.Duration
}

func NewWorker(source capture.FrameSource, detector Detector, gate *gate.ChangeGate, relay Sender, opts Options, logger *logger.Logger) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	return &Worker{
		source:   source,
		detector: detector,
		gate:     gate,
		relay:    relay,
		interval: opts.Interval,
		backoff:  opts.Backoff,
		status:   make(chan Status, 1),
		now:      time.Now,
		logger:   logger,
	}
}

// Status returns the channel of iteration results. Only the latest value
// is kept when the reader falls behind.
func (w *Worker) Status() <-chan Status {
	return w.status
}

// Run scans until ctx is cancelled. An iteration that takes longer than
// the interval is followed immediately by the next one; a capture error
// waits for the back-off instead.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Scanner started (interval %v, back-off %v)", w.interval, w.backoff)
	defer w.logger.Info("Scanner stopped")

	for {
		started := time.Now()
		status, err := w.Tick()
		w.publish(status)

		wait := w.interval - time.Since(started)
		if err != nil {
			wait = w.backoff
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick performs one iteration. The returned error is only set for
// capture failures and decoder panics, which call for the longer back-off.
func (w *Worker) Tick() (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
			w.logger.Error("Scan iteration failed: %v", err)
			status = Status{State: StateDecodeFailed, Err: err, At: w.now()}
		}
	}()
	return w.tick()
}

func (w *Worker) tick() (Status, error) {
	frame, err := w.source.Capture()
	if err != nil {
		w.logger.Error("Capture failed: %v", err)
		return Status{State: StateCaptureFailed, Err: err, At: w.now()}, err
	}
	defer frame.Close()

	res, ok := w.detect(frame)
	now := w.now()
	if !ok {
		return Status{State: StateScanning, At: now}, nil
	}

	status := Status{Payload: res.Payload, Method: res.StrategyTag, At: now}
	if !w.gate.Check(res.Payload, now) {
		status.State = StateSuppressed
		return status, nil
	}

	if err := w.relay.SendScan(res.Raw, res.StrategyTag); err != nil {
		// Bramka zostaje niezatwierdzona, następny tick spróbuje ponownie
		w.logger.Warning("Failed to relay payload: %v", err)
		status.State = StateSendFailed
		status.Err = err
		return status, nil
	}

	w.gate.Commit(res.Payload, now)
	w.logger.Info("Relayed payload via %s", res.StrategyTag)
	status.State = StateSent
	return status, nil
}

// detect runs the cascade on the frame, then on a downsampled copy.
func (w *Worker) detect(frame gocv.Mat) (dto.DetectionResult, bool) {
	if res, ok := w.detector.Detect(frame); ok {
		return res, true
	}
	if frame.Cols() == DownsampleWidth && frame.Rows() == DownsampleHeight {
		return dto.DetectionResult{}, false
	}

	small := gocv.NewMat()
	defer small.Close()
	size := image.Pt(DownsampleWidth, DownsampleHeight)
	if err := gocv.Resize(frame, &small, size, 0, 0, gocv.InterpolationLinear); err != nil {
		w.logger.Warning("Downsample failed: %v", err)
		return dto.DetectionResult{}, false
	}

	res, ok := w.detector.Detect(small)
	if !ok {
		return dto.DetectionResult{}, false
	}

	res.StrategyTag = downsamplePrefix + res.StrategyTag
	res.Region = upscaleRegion(res.Region, frame.Cols(), frame.Rows())
	return res, true
}

func upscaleRegion(points []image.Point, cols, rows int) []image.Point {
	if points == nil {
		return nil
	}

	out := make([]image.Point, len(points))
	for i, p := range points {
		out[i] = image.Pt(p.X*cols/DownsampleWidth, p.Y*rows/DownsampleHeight)
	}
	return out
}

// publish keeps only the newest status in the channel.
func (w *Worker) publish(s Status) {
	select {
	case w.status <- s:
		return
	default:
	}

	select {
	case <-w.status:
	default:
	}

	select {
	case w.status <- s:
	default:
	}
}
