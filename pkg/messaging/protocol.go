package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Kind discriminates the payload carried by a Message.
type Kind string

const (
	KindCaptureTab        Kind = "capture-tab"        // KindCaptureTab asks the background context for a full-tab frame.
	KindRawFrame          Kind = "raw-frame"          // KindRawFrame answers capture-tab with the encoded frame.
	KindSelectionComplete Kind = "selection-complete" // KindSelectionComplete delivers the cropped image to the control surface.
	KindInvokeSelection   Kind = "invoke-selection"   // KindInvokeSelection arms the selection overlay in a page.
	KindInvokeResult      Kind = "invoke-result"      // KindInvokeResult answers invoke-selection.
	KindCancelSelection   Kind = "cancel-selection"   // KindCancelSelection abandons an armed overlay.
	KindAck               Kind = "ack"                // KindAck acknowledges a request that has no other answer.
	KindError             Kind = "error"              // KindError answers a request that failed.
)

// ContextID names an isolated execution context attached to a Bus.
type ContextID string

const (
	// Background is the privileged context that owns tab capture
	Background ContextID = "background"
	// ControlSurface is the context that triggers captures and shows results
	ControlSurface ContextID = "control-surface"
)

const pagePrefix = "page/"

// PageContext returns the context ID of the runtime injected into a tab.
func PageContext(tabID string) ContextID {
	return ContextID(pagePrefix + tabID)
}

// IsPage reports whether id names a page context.
func (id ContextID) IsPage() bool {
	return strings.HasPrefix(string(id), pagePrefix)
}

// Message is the envelope exchanged between contexts. Payload holds the
// JSON encoding of the payload type registered for Kind.
type Message struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	From    ContextID       `json:"from"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsReply reports whether the message answers an earlier request.
func (m Message) IsReply() bool {
	return m.ReplyTo != ""
}

// Payload is implemented by every typed message body.
type Payload interface {
	Kind() Kind
	Validate() error
}

// CaptureTab carries no data.
type CaptureTab struct{}

// RawFrame is an encoded image of the entire visible tab.
type RawFrame struct {
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// Rect is a selection rectangle in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Image is an encoded cropped image. Data is empty for a zero-area crop.
type Image struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Format     string  `json:"format"`
	Data       []byte  `json:"data,omitempty"`
	PixelRatio float64 `json:"pixel_ratio"`
	Rect       Rect    `json:"rect"`
}

// SelectionComplete delivers a finished gesture's image.
type SelectionComplete struct {
	GestureID string `json:"gesture_id"`
	Image     Image  `json:"image"`
}

// InvokeSelection carries no data.
type InvokeSelection struct{}

// InvokeResult answers invoke-selection.
type InvokeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CancelSelection carries no data.
type CancelSelection struct{}

// Ack carries no data.
type Ack struct{}

// ErrorReply answers a request that could not be served.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (CaptureTab) Kind() Kind        { return KindCaptureTab }
func (RawFrame) Kind() Kind          { return KindRawFrame }
func (SelectionComplete) Kind() Kind { return KindSelectionComplete }
func (InvokeSelection) Kind() Kind   { return KindInvokeSelection }
func (InvokeResult) Kind() Kind      { return KindInvokeResult }
func (CancelSelection) Kind() Kind   { return KindCancelSelection }
func (Ack) Kind() Kind               { return KindAck }
func (ErrorReply) Kind() Kind        { return KindError }

func (CaptureTab) Validate() error      { return nil }
func (InvokeSelection) Validate() error { return nil }
func (CancelSelection) Validate() error { return nil }
func (Ack) Validate() error             { return nil }

func (f RawFrame) Validate() error {
	if f.Format == "" {
		return fmt.Errorf("raw frame format is required")
	}
	if len(f.Data) == 0 {
		return fmt.Errorf("raw frame is empty")
	}
	return nil
}

func (r Rect) Validate() error {
	for _, v := range []float64{r.Left, r.Top, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("rect has non-finite coordinate")
		}
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("rect has negative size %vx%v", r.Width, r.Height)
	}
	return nil
}

func (s SelectionComplete) Validate() error {
	if s.GestureID == "" {
		return fmt.Errorf("gesture id is required")
	}
	img := s.Image
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("image has negative size %dx%d", img.Width, img.Height)
	}
	if img.Format == "" {
		return fmt.Errorf("image format is required")
	}
	if img.Width > 0 && img.Height > 0 && len(img.Data) == 0 {
		return fmt.Errorf("image of %dx%d has no data", img.Width, img.Height)
	}
	if !(img.PixelRatio > 0) {
		return fmt.Errorf("image pixel ratio must be positive")
	}
	return img.Rect.Validate()
}

func (r InvokeResult) Validate() error {
	if r.Success && r.Error != "" {
		return fmt.Errorf("successful invoke result carries an error")
	}
	return nil
}

func (e ErrorReply) Validate() error {
	if e.Code == "" {
		return fmt.Errorf("error code is required")
	}
	return nil
}

// registry maps each kind to a constructor of its zero payload.
var registry = map[Kind]func() Payload{
	KindCaptureTab:        func() Payload { return &CaptureTab{} },
	KindRawFrame:          func() Payload { return &RawFrame{} },
	KindSelectionComplete: func() Payload { return &SelectionComplete{} },
	KindInvokeSelection:   func() Payload { return &InvokeSelection{} },
	KindInvokeResult:      func() Payload { return &InvokeResult{} },
	KindCancelSelection:   func() Payload { return &CancelSelection{} },
	KindAck:               func() Payload { return &Ack{} },
	KindError:             func() Payload { return &ErrorReply{} },
}

var (
	// ErrUnknownKind is returned for messages whose kind is not registered
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrMalformed is returned for envelopes or payloads that fail decoding
	ErrMalformed = errors.New("malformed message")
)

// NewMessage wraps p in an envelope with a fresh ID.
func NewMessage(from ContextID, p Payload) (Message, error) {
	if err := p.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid %s payload: %w", p.Kind(), err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", p.Kind(), err)
	}
	return Message{
		ID:      uuid.New().String(),
		Kind:    p.Kind(),
		From:    from,
		Payload: body,
	}, nil
}

// NewReply wraps p in an envelope answering req.
func NewReply(from ContextID, req Message, p Payload) (Message, error) {
	msg, err := NewMessage(from, p)
	if err != nil {
		return Message{}, err
	}
	msg.ReplyTo = req.ID
	return msg, nil
}

// Encode serializes a message for transport.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a transported message, including its payload.
// Unknown kinds and unknown fields are rejected.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := strictUnmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.ID == "" || m.From == "" {
		return Message{}, fmt.Errorf("%w: envelope requires id and from", ErrMalformed)
	}
	if _, err := m.Unpack(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Unpack decodes the payload into the type registered for the message kind.
func (m Message) Unpack() (Payload, error) {
	newPayload, ok := registry[m.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	p := newPayload()
	if len(m.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(m.Payload), []byte("null")) {
		if err := strictUnmarshal(m.Payload, p); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, m.Kind, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, m.Kind, err)
	}
	return p, nil
}

func strictUnmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}
