// Package framesource defines the frame acquisition boundary of the visual
// query engine.
//
// A [Source] hands out the most recent still frame of a live video surface on
// demand. Sources never block: when no decodable frame is buffered yet they
// report not-ready and the engine simply skips that cycle. Where the frames
// come from — a pushed WebSocket stream, a directory of pre-encoded images,
// a test double — is the concern of the subpackages.
package framesource

import (
	"encoding/base64"
	"time"
)

// DefaultMIME is assumed for frames whose producer did not declare a type.
const DefaultMIME = "image/jpeg"

// Frame is a single self-contained encoded still, suitable for transmission
// in one inference request body.
type Frame struct {
	// Data holds the compressed raster bytes (JPEG, PNG, WebP, ...).
	Data []byte

	// MIME is the content type of Data. Empty means [DefaultMIME].
	MIME string

	// CapturedAt is when the frame was produced.
	CapturedAt time.Time
}

// DataURI renders the frame as a base64 data URI, the form the inference
// endpoint accepts in its image_url field.
func (f Frame) DataURI() string {
	mime := f.MIME
	if mime == "" {
		mime = DefaultMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Source exposes the current video surface to the engine.
type Source interface {
	// Capture returns the current frame. The boolean is false when the source
	// has no decodable frame available yet; this is a normal condition, not an
	// error, and the caller is expected to try again on its next cycle.
	// Capture must not block.
	Capture() (Frame, bool)
}
