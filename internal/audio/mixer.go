package audio

import "time"

// Mixed output is 48 kHz interleaved stereo LINEAR16, one 20 ms frame per read.
const (
	SampleRate    = 48000
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate * Channels * int(FrameDuration/time.Millisecond) / 1000
	FrameBytes    = FrameSamples * 2
)

// Mixer decodes per-speaker opus packets and mixes them into a single PCM stream.
type Mixer interface {
	WriteOpusPacket(userID string, opus []byte)
	// ReadMixedPCM writes at most one frame into buf. It returns 0 when no
	// speaker has queued audio.
	ReadMixedPCM(buf []byte) (int, error)
	Close()
}

type MixerFactory func() Mixer
