// Package audio holds the PCM primitives shared by the capture, playback, and
// transport layers. All audio in vani is 16-bit little-endian mono PCM:
// 16 kHz on the way to the model, 24 kHz on the way back.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"
)

const (
	// CaptureRate is the sample rate of microphone audio sent upstream.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of model audio played back locally.
	PlaybackRate = 24000

	// FrameSamples is the number of samples per capture frame.
	FrameSamples = 1024
)

// Frame is a window of 16-bit mono PCM samples.
type Frame []int16

// RMS returns the root-mean-square level of the frame in the normalized
// [0, 1) float domain. An empty frame has level 0.
func RMS(frame Frame) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ApplyGain multiplies each sample by gain in place, clamping to the int16
// range.
func ApplyGain(frame Frame, gain float64) {
	for i, s := range frame {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			frame[i] = math.MaxInt16
		case v < math.MinInt16:
			frame[i] = math.MinInt16
		default:
			frame[i] = int16(v)
		}
	}
}

// EncodeBytes serializes a frame as little-endian int16 PCM bytes.
func EncodeBytes(frame Frame) []byte {
	buf := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// DecodeBytes parses little-endian int16 PCM bytes into a frame. A trailing
// odd byte is ignored.
func DecodeBytes(pcm []byte) Frame {
	frame := make(Frame, len(pcm)/2)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return frame
}

// EncodeBase64 encodes raw PCM bytes for a JSON media chunk.
func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeBase64 decodes a JSON media chunk payload back to raw PCM bytes.
func DecodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

// Duration returns the wall-clock length of n samples at the given rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// Resample converts a mono frame from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(frame Frame, srcRate, dstRate int) Frame {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(frame) == 0 {
		return frame
	}
	dstSamples := int(int64(len(frame)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make(Frame, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := frame[srcIdx]
		s1 := s0
		if srcIdx+1 < len(frame) {
			s1 = frame[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
