package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/huddle/internal/config"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	ConferenceURL              string `env:"CONFERENCE_URL,required"`
	SessionName                string `env:"SESSION_NAME,required"`
	DisplayName                string `env:"DISPLAY_NAME,required"`
	SessionPassword            string `env:"SESSION_PASSWORD"`
	SessionToken               string `env:"SESSION_TOKEN"`
	SessionIsHost              bool   `env:"SESSION_IS_HOST" envDefault:"false"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"us-central1"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	DatabaseURL                string `env:"DATABASE_URL"`
	ArchiveWebhookURL          string `env:"ARCHIVE_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ConferenceURL:              raw.ConferenceURL,
		SessionName:                raw.SessionName,
		DisplayName:                raw.DisplayName,
		SessionPassword:            raw.SessionPassword,
		SessionToken:               raw.SessionToken,
		SessionIsHost:              raw.SessionIsHost,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DatabaseURL:                raw.DatabaseURL,
		ArchiveWebhookURL:          raw.ArchiveWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
