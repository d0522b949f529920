package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snapcrop/pkg/logging"
	"github.com/entrhq/snapcrop/pkg/selection"
)

type stubFrames struct {
	frame RawFrame
	err   error
	calls int
}

func (s *stubFrames) RequestFrame(context.Context) (RawFrame, error) {
	s.calls++
	return s.frame, s.err
}

type stubRatio struct {
	ratios []float64
	err    error
	calls  int
}

func (s *stubRatio) PixelRatio(context.Context) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	r := s.ratios[min(s.calls, len(s.ratios)-1)]
	s.calls++
	return r, nil
}

func pngFrame(t *testing.T, w, h int) RawFrame {
	t.Helper()
	data, err := EncodePNG(gradient(w, h))
	require.NoError(t, err)
	return RawFrame{Format: FormatPNG, Data: data}
}

func TestRequester_Capture(t *testing.T) {
	frames := &stubFrames{frame: pngFrame(t, 1280, 720)}
	ratio := &stubRatio{ratios: []float64{1}}
	r := NewRequester(frames, ratio, nil)

	rect := selection.Rect{Left: 100, Top: 100, Width: 200, Height: 150}
	img, err := r.Capture(context.Background(), rect)
	require.NoError(t, err)

	assert.Equal(t, 200, img.Width)
	assert.Equal(t, 150, img.Height)
	assert.Equal(t, FormatPNG, img.Format)
	assert.Equal(t, 1.0, img.PixelRatio)
	assert.Equal(t, rect, img.Rect)
	assert.Equal(t, 1, frames.calls)

	decoded, err := img.Decode()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 150), decoded.Bounds())
	assert.Contains(t, img.DataURL(), "data:image/png;base64,")
}

func TestRequester_ReadsRatioEachCapture(t *testing.T) {
	frames := &stubFrames{frame: pngFrame(t, 800, 600)}
	ratio := &stubRatio{ratios: []float64{1, 2}}
	r := NewRequester(frames, ratio, nil)

	rect := selection.Rect{Left: 10, Top: 10, Width: 50, Height: 40}

	first, err := r.Capture(context.Background(), rect)
	require.NoError(t, err)
	second, err := r.Capture(context.Background(), rect)
	require.NoError(t, err)

	assert.Equal(t, 50, first.Width)
	assert.Equal(t, 100, second.Width)
	assert.Equal(t, 80, second.Height)
	assert.Equal(t, 2.0, second.PixelRatio)
}

func TestRequester_ZeroAreaSelection(t *testing.T) {
	r := NewRequester(&stubFrames{frame: pngFrame(t, 100, 100)}, &stubRatio{ratios: []float64{2}}, nil)

	img, err := r.Capture(context.Background(), selection.Rect{Left: 40, Top: 40})
	require.NoError(t, err)

	assert.True(t, img.Empty())
	assert.Empty(t, img.Data)
	assert.Equal(t, "data:,", img.DataURL())
	assert.Equal(t, FormatPNG, img.Format)

	decoded, err := img.Decode()
	require.NoError(t, err)
	assert.True(t, decoded.Bounds().Empty())
}

func TestRequester_CaptureDenied(t *testing.T) {
	var logs bytes.Buffer
	frames := &stubFrames{err: ErrCaptureDenied}
	ratio := &stubRatio{ratios: []float64{1}}
	r := NewRequester(frames, ratio, logging.NewWriterLogger("requester", &logs))

	img, err := r.Capture(context.Background(), selection.Rect{Width: 10, Height: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCaptureDenied))
	assert.Equal(t, CroppedImage{}, img)
	assert.Zero(t, ratio.calls, "no crop is attempted without a frame")
	assert.Contains(t, logs.String(), "failed to capture screen")
}

func TestRequester_EmptyFrame(t *testing.T) {
	r := NewRequester(&stubFrames{frame: RawFrame{Format: FormatPNG}}, &stubRatio{ratios: []float64{1}}, nil)

	_, err := r.Capture(context.Background(), selection.Rect{Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrCaptureDenied)
}

func TestRequester_BadFrameAndRatio(t *testing.T) {
	t.Run("undecodable frame", func(t *testing.T) {
		frames := &stubFrames{frame: RawFrame{Format: FormatPNG, Data: []byte("not a png")}}
		r := NewRequester(frames, &stubRatio{ratios: []float64{1}}, nil)
		_, err := r.Capture(context.Background(), selection.Rect{Width: 10, Height: 10})
		assert.Error(t, err)
	})

	t.Run("ratio unavailable", func(t *testing.T) {
		r := NewRequester(&stubFrames{frame: pngFrame(t, 20, 20)}, &stubRatio{err: errors.New("page gone")}, nil)
		_, err := r.Capture(context.Background(), selection.Rect{Width: 10, Height: 10})
		assert.ErrorContains(t, err, "page gone")
	})

	t.Run("invalid ratio", func(t *testing.T) {
		r := NewRequester(&stubFrames{frame: pngFrame(t, 20, 20)}, &stubRatio{ratios: []float64{0}}, nil)
		_, err := r.Capture(context.Background(), selection.Rect{Width: 10, Height: 10})
		assert.ErrorIs(t, err, ErrInvalidPixelRatio)
	})
}

func TestCroppedImage_PayloadRoundTrip(t *testing.T) {
	img := CroppedImage{
		Width:      2,
		Height:     3,
		Format:     FormatPNG,
		Data:       []byte{1, 2, 3},
		PixelRatio: 1.5,
		Rect:       selection.Rect{Left: 1, Top: 2, Width: 1.5, Height: 2},
	}
	assert.Equal(t, img, CroppedImageFromPayload(img.Payload()))

	frame := RawFrame{Format: FormatPNG, Data: []byte{9}}
	assert.Equal(t, frame, RawFrameFromPayload(frame.Payload()))
}

func TestRawFrame_DecodeRejectsOtherFormats(t *testing.T) {
	_, err := RawFrame{Format: "jpeg", Data: []byte{1}}.Decode()
	assert.ErrorContains(t, err, "unsupported frame format")
}
