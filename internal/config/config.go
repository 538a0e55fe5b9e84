package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Env                        string
	ConferenceURL              string
	SessionName                string
	DisplayName                string
	SessionPassword            string
	SessionToken               string
	SessionIsHost              bool
	DefaultTranscribeLanguage  string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DatabaseURL                string
	ArchiveWebhookURL          string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if strings.TrimSpace(req.value) == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	u, err := url.Parse(c.ConferenceURL)
	if err != nil {
		return fmt.Errorf("CONFERENCE_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("CONFERENCE_URL must use ws or wss scheme, got %q", u.Scheme)
	}
	if (c.GoogleCloudProjectID == "") != (c.GoogleCloudCredentialsJSON == "") {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON must be set together")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "CONFERENCE_URL", value: c.ConferenceURL},
		{name: "SESSION_NAME", value: c.SessionName},
		{name: "DISPLAY_NAME", value: c.DisplayName},
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// CloudSpeechEnabled reports whether local transcription can be hosted.
func (c *Config) CloudSpeechEnabled() bool {
	return c.GoogleCloudProjectID != "" && c.GoogleCloudCredentialsJSON != ""
}
