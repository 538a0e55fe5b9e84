package transcriber

import (
	"log/slog"

	"github.com/foxseedlab/huddle/internal/config"
	"github.com/foxseedlab/huddle/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		if !c.CloudSpeechEnabled() {
			slog.Info("cloud speech not configured; local captions disabled")
			return NewUnavailableTranscriber(), nil
		}
		return NewCloudSpeechTranscriber(CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Language:        c.DefaultTranscribeLanguage,
			Location:        c.GoogleCloudSpeechLocation,
			Model:           c.GoogleCloudSpeechModel,
		}), nil
	})
}
