package conference

import (
	"github.com/foxseedlab/huddle/internal/audio"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/config"
	"github.com/foxseedlab/huddle/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (conference.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		t := do.MustInvoke[transcriber.Transcriber](i)
		newMixer := do.MustInvoke[audio.MixerFactory](i)
		return NewRelayClient(cfg.ConferenceURL, t, newMixer), nil
	})
}
