package transcriber

import (
	"context"

	"github.com/foxseedlab/huddle/internal/transcriber"
)

// unavailableTranscriber is used when no Google Cloud credentials are set.
type unavailableTranscriber struct{}

func NewUnavailableTranscriber() transcriber.Transcriber {
	return unavailableTranscriber{}
}

func (unavailableTranscriber) StartStreaming(context.Context, string, string, transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	return nil, transcriber.ErrUnavailable
}
