package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/huddle/internal/command"
	"github.com/foxseedlab/huddle/internal/conference"
)

// StartTranscription starts the transport's transcription engine. While it
// runs, this client relays every caption to its peers.
func (c *Coordinator) StartTranscription(ctx context.Context, language string) {
	c.mu.Lock()
	if language == "" {
		language = c.transcriptionLanguage
	}
	c.mu.Unlock()
	if err := c.client.StartTranscription(ctx, language); err != nil {
		slog.Error("failed to start transcription", "error", err, "language", language)
		return
	}
	c.mutate(func() bool {
		c.transcriptionOn = true
		c.transcriptionLanguage = language
		return true
	})
}

func (c *Coordinator) StopTranscription(ctx context.Context) {
	if err := c.client.StopTranscription(ctx); err != nil {
		slog.Error("failed to stop transcription", "error", err)
		return
	}
	c.mutate(func() bool {
		changed := c.transcriptionOn
		c.transcriptionOn = false
		return changed
	})
}

func (c *Coordinator) SetTranscriptionLanguage(ctx context.Context, language string) {
	if language == "" {
		return
	}
	if err := c.client.SetTranscriptionLanguage(ctx, language); err != nil {
		slog.Error("failed to set transcription language", "error", err, "language", language)
		return
	}
	c.mutate(func() bool {
		changed := c.transcriptionLanguage != language
		c.transcriptionLanguage = language
		return changed
	})
}

func (c *Coordinator) handleTranscription(ev conference.TranscriptionReceived) {
	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	speaker := ev.SpeakerName
	if speaker == "" {
		speaker = unknownSpeaker
	}
	stamp := ev.Timestamp
	relay := false
	c.mutate(func() bool {
		if stamp.IsZero() {
			stamp = c.scheduler.Now()
		}
		c.transcriptions = appended(c.transcriptions, TranscriptionMessage{
			SpeakerName: speaker,
			Text:        ev.Text,
			Translation: ev.Translation,
			Timestamp:   stamp,
		})
		relay = c.transcriptionOn
		return true
	})
	if relay {
		c.broadcast(context.Background(), "", command.LiveCaption{
			SpeakerName: speaker,
			Text:        ev.Text,
			Translation: ev.Translation,
			Timestamp:   stamp.UnixMilli(),
		})
	}
}

func (c *Coordinator) handleLiveCaption(caption command.LiveCaption) {
	if strings.TrimSpace(caption.Text) == "" {
		return
	}
	c.mutate(func() bool {
		stamp := c.scheduler.Now()
		if caption.Timestamp > 0 {
			stamp = time.UnixMilli(caption.Timestamp)
		}
		speaker := caption.SpeakerName
		if speaker == "" {
			speaker = unknownSpeaker
		}
		c.transcriptions = appended(c.transcriptions, TranscriptionMessage{
			SpeakerName: speaker,
			Text:        caption.Text,
			Translation: caption.Translation,
			Timestamp:   stamp,
		})
		return true
	})
}
