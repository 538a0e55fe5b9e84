package transcriber

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no speech backend is configured.
var ErrUnavailable = errors.New("transcriber: speech backend not configured")

type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

type ResultReceiver interface {
	OnResult(segmentIndex int, text string, isFinal bool)
	OnError(err error)
}

// Transcriber turns a stream of 48 kHz stereo LINEAR16 PCM into text.
type Transcriber interface {
	StartStreaming(ctx context.Context, streamID, language string, receiver ResultReceiver) (StreamWriter, error)
}
