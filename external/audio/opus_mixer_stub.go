//go:build !opus

package audio

import (
	"log/slog"
	"sync"

	"github.com/foxseedlab/huddle/internal/audio"
)

var warnStubOnce sync.Once

// noopMixer stands in for the libopus mixer in builds without the opus tag.
// Captions stay silent because no PCM is ever produced.
type noopMixer struct{}

func NewOpusMixer() audio.Mixer {
	warnStubOnce.Do(func() {
		slog.Warn("built without opus tag; received audio will not be decoded")
	})
	return noopMixer{}
}

func (noopMixer) WriteOpusPacket(string, []byte) {}

func (noopMixer) ReadMixedPCM([]byte) (int, error) {
	return 0, nil
}

func (noopMixer) Close() {}
