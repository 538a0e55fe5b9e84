//go:build opus

package audio

import (
	"log/slog"
	"sync"

	"github.com/foxseedlab/huddle/internal/audio"
	"github.com/hraban/opus"
)

type OpusMixer struct {
	mu       sync.Mutex
	decoders map[string]*opus.Decoder
	queues   map[string]*frameQueue
	closed   bool
}

func NewOpusMixer() audio.Mixer {
	return &OpusMixer{
		decoders: make(map[string]*opus.Decoder),
		queues:   make(map[string]*frameQueue),
	}
}

func (m *OpusMixer) WriteOpusPacket(userID string, opusData []byte) {
	if len(opusData) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	dec, ok := m.decoders[userID]
	if !ok {
		var err error
		dec, err = opus.NewDecoder(audio.SampleRate, audio.Channels)
		if err != nil {
			slog.Warn("failed to create opus decoder", "error", err, "user_id", userID)
			return
		}
		m.decoders[userID] = dec
		m.queues[userID] = &frameQueue{}
	}
	pcm := make([]int16, audio.FrameSamples)
	n, err := dec.Decode(opusData, pcm)
	if err != nil {
		slog.Debug("dropping undecodable opus packet", "error", err, "user_id", userID)
		return
	}
	if n <= 0 {
		return
	}
	total := n * audio.Channels
	if total > audio.FrameSamples {
		total = audio.FrameSamples
	}
	frame := make([]int16, total)
	copy(frame, pcm[:total])
	m.queues[userID].push(frame)
}

func (m *OpusMixer) ReadMixedPCM(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !hasQueuedFrames(m.queues) {
		return 0, nil
	}
	mixed := make([]int16, audio.FrameSamples)
	mixQueuedFrames(m.queues, mixed)
	return writeMixedPCM(buf, mixed), nil
}

func (m *OpusMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.decoders = nil
	m.queues = nil
}
