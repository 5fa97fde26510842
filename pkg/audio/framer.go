// Package audio handles the PCM wire format: frame normalization, the
// minimal RIFF/WAVE container, and the per-session capture buffer.
//
// All audio in the system is 16-bit little-endian signed mono PCM at
// 16 kHz. Devices are required to send in this format; the server never
// resamples.
package audio

import "encoding/base64"

const (
	// MaxFrameBytes is the largest inbound audio frame accepted from a
	// client. Larger frames are dropped.
	MaxFrameBytes = 1 << 20 // 1 MiB

	// BitsPerSample is fixed at 16 for the PCM format on the wire.
	BitsPerSample = 16
)

// Normalize converts an inbound frame into raw PCM bytes. []byte inputs
// pass through; string inputs are treated as standard base64. Empty
// frames, frames over MaxFrameBytes, undecodable strings, and any other
// input type are rejected (ok == false). Rejection is silent by contract:
// the caller drops the frame without tearing anything down.
func Normalize(raw any) ([]byte, bool) {
	var frame []byte
	switch v := raw.(type) {
	case []byte:
		frame = v
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		frame = decoded
	default:
		return nil, false
	}

	if len(frame) == 0 || len(frame) > MaxFrameBytes {
		return nil, false
	}
	return frame, true
}
