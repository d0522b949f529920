package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/selection"
)

// ErrCaptureDenied is returned when no frame could be obtained for the
// visible tab: restricted page, missing permission, no active tab, or a
// transient browser failure.
var ErrCaptureDenied = errors.New("capture denied")

// FrameSource obtains one full-tab frame per call.
type FrameSource interface {
	RequestFrame(ctx context.Context) (RawFrame, error)
}

// RatioSource reports the device pixel ratio of the page at call time.
type RatioSource interface {
	PixelRatio(ctx context.Context) (float64, error)
}

// Requester turns a finished selection into a CroppedImage.
type Requester struct {
	frames FrameSource
	ratio  RatioSource
	logger *logging.Logger
}

// NewRequester creates a requester.
func NewRequester(frames FrameSource, ratio RatioSource, logger *logging.Logger) *Requester {
	if logger == nil {
		logger = logging.Discard("requester")
	}
	return &Requester{frames: frames, ratio: ratio, logger: logger}
}

// Capture requests a frame, crops it to rect at the current pixel ratio
// and encodes the result. Every failure is terminal for the attempt; no
// partial image is returned.
func (r *Requester) Capture(ctx context.Context, rect selection.Rect) (CroppedImage, error) {
	r.logger.Debugf("selection: %s", rect)

	frame, err := r.frames.RequestFrame(ctx)
	if err != nil {
		r.logger.Errorf("failed to capture screen: %v", err)
		return CroppedImage{}, err
	}
	if len(frame.Data) == 0 {
		r.logger.Errorf("failed to capture screen: empty frame")
		return CroppedImage{}, fmt.Errorf("%w: empty frame", ErrCaptureDenied)
	}

	img, err := frame.Decode()
	if err != nil {
		r.logger.Errorf("failed to decode frame: %v", err)
		return CroppedImage{}, err
	}

	// Read fresh: the window may have moved to another display since the
	// last capture.
	ratio, err := r.ratio.PixelRatio(ctx)
	if err != nil {
		r.logger.Errorf("failed to read pixel ratio: %v", err)
		return CroppedImage{}, fmt.Errorf("failed to read pixel ratio: %w", err)
	}

	cropped, err := Crop(img, rect, ratio)
	if err != nil {
		r.logger.Errorf("failed to crop frame: %v", err)
		return CroppedImage{}, err
	}

	out := CroppedImage{
		Width:      cropped.Bounds().Dx(),
		Height:     cropped.Bounds().Dy(),
		Format:     FormatPNG,
		PixelRatio: ratio,
		Rect:       rect,
	}
	if out.Empty() {
		r.logger.Warnf("empty selection %s produced a zero-size image", rect)
		return out, nil
	}

	out.Data, err = EncodePNG(cropped)
	if err != nil {
		r.logger.Errorf("failed to encode crop: %v", err)
		return CroppedImage{}, err
	}
	r.logger.Infof("cropped %dx%d at ratio %g", out.Width, out.Height, ratio)
	return out, nil
}
