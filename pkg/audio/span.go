// Package audio provides the PCM span type consumed by STT providers and the
// format conversion helpers needed to feed engines with different preferred
// input formats.
//
// A [Span] is a bounded, fully captured stretch of audio, a chunk or a whole
// session recording. The reconciliation engine never touches raw samples
// itself; it only asks a Span for sub-clips when a low-confidence region needs
// to be re-transcribed in isolation.
package audio

import "fmt"

// bytesPerSample is the sample width for 16-bit PCM.
const bytesPerSample = 2

// Span is a bounded stretch of little-endian 16-bit PCM audio.
type Span struct {
	// PCM is the raw sample data. Length must be a multiple of
	// 2 * Channels bytes.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 48000 for capture output).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int
}

// DurationMs returns the span length in milliseconds, or 0 for an empty or
// misconfigured span.
func (s Span) DurationMs() int64 {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	frames := len(s.PCM) / (bytesPerSample * s.Channels)
	return int64(frames) * 1000 / int64(s.SampleRate)
}

// Clip extracts the sub-span covering [startMs, endMs). Bounds are clamped to
// the span; a degenerate range yields an empty span with the same format.
// The returned span shares the underlying PCM buffer.
func (s Span) Clip(startMs, endMs int64) Span {
	out := Span{SampleRate: s.SampleRate, Channels: s.Channels}
	if s.SampleRate <= 0 || s.Channels <= 0 || endMs <= startMs {
		return out
	}
	if startMs < 0 {
		startMs = 0
	}
	frameBytes := bytesPerSample * s.Channels
	totalFrames := len(s.PCM) / frameBytes

	startFrame := startMs * int64(s.SampleRate) / 1000
	endFrame := endMs * int64(s.SampleRate) / 1000
	if startFrame >= int64(totalFrames) {
		return out
	}
	if endFrame > int64(totalFrames) {
		endFrame = int64(totalFrames)
	}

	out.PCM = s.PCM[startFrame*int64(frameBytes) : endFrame*int64(frameBytes)]
	return out
}

// Normalize converts the span to the given mono sample rate, the common
// denominator for STT input. Stereo input is downmixed first, then resampled.
// A span already in the target format is returned unchanged (zero copy).
func (s Span) Normalize(targetRate int) (Span, error) {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return Span{}, fmt.Errorf("audio: invalid span format %dHz/%dch", s.SampleRate, s.Channels)
	}
	if len(s.PCM)%(bytesPerSample*s.Channels) != 0 {
		return Span{}, fmt.Errorf("audio: PCM length %d is not frame-aligned for %d channels", len(s.PCM), s.Channels)
	}
	if s.Channels == 1 && s.SampleRate == targetRate {
		return s, nil
	}

	pcm := s.PCM
	if s.Channels == 2 {
		pcm = StereoToMono(pcm)
	} else if s.Channels != 1 {
		return Span{}, fmt.Errorf("audio: unsupported channel count %d", s.Channels)
	}
	pcm = ResampleMono16(pcm, s.SampleRate, targetRate)

	return Span{PCM: pcm, SampleRate: targetRate, Channels: 1}, nil
}

// Float32Mono returns the span's samples as normalised float32 values in
// [-1, 1], downmixing stereo input. This is the input format expected by
// whisper.cpp.
func (s Span) Float32Mono() []float32 {
	pcm := s.PCM
	if s.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples
}
