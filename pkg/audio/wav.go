package audio

import (
	"encoding/binary"
	"time"
)

// WAVHeaderSize is the size of the RIFF/WAVE header EncodeWAV prepends.
const WAVHeaderSize = 44

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAVE container (44-byte header with "fmt " and "data" sub-chunks).
// The returned byte slice is suitable for direct provider submission.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := BitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, WAVHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// BytesPerSecond returns the PCM byte rate for mono 16-bit audio at the
// given sample rate.
func BytesPerSecond(sampleRate int) int {
	return sampleRate * BitsPerSample / 8
}

// Duration returns the playback duration of n bytes of mono 16-bit PCM.
func Duration(n, sampleRate int) time.Duration {
	bps := BytesPerSecond(sampleRate)
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// DurationSeconds is Duration as a float64 second count. This is the
// authoritative time base for chunk stitching: duration is always derived
// from the input byte count, never from provider-reported values.
func DurationSeconds(n, sampleRate int) float64 {
	bps := BytesPerSecond(sampleRate)
	if bps <= 0 {
		return 0
	}
	return float64(n) / float64(bps)
}
