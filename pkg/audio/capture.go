package audio

import "sync"

// CaptureBuffer accumulates a session's PCM stream. It maintains two
// views under one mutex: the cumulative buffer holding every byte ever
// appended (in append order), and the window buffer drained by each
// streaming flush.
//
// Memory grows linearly with session length: 16 kHz mono 16-bit PCM is
// 32 KiB/s, about 115 MiB per hour. Multi-hour sessions are expected;
// callers size their process accordingly.
type CaptureBuffer struct {
	mu       sync.Mutex
	complete []byte
	window   []byte
}

// NewCaptureBuffer returns an empty buffer.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

// Append adds pcm to both the cumulative and window buffers.
func (b *CaptureBuffer) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.complete = append(b.complete, pcm...)
	b.window = append(b.window, pcm...)
}

// DrainWindow returns the current window contents and resets the window.
// The cumulative buffer is untouched.
func (b *CaptureBuffer) DrainWindow() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.window
	b.window = nil
	return w
}

// ResetWindow discards the current window contents.
func (b *CaptureBuffer) ResetWindow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window = nil
}

// Snapshot returns a copy of the cumulative buffer, contiguous and in
// append order.
func (b *CaptureBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.complete))
	copy(out, b.complete)
	return out
}

// Len returns the cumulative byte count.
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.complete)
}

// WindowLen returns the current window byte count.
func (b *CaptureBuffer) WindowLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.window)
}
