package conference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/huddle/internal/audio"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/transcriber"
)

const captionStatsInterval = 30 * time.Second

// captionEngine hosts transcription locally: relayed opus packets are mixed
// and streamed to the transcriber, and final results come back as
// TranscriptionReceived events attributed to the most recent speaker.
type captionEngine struct {
	transcriber transcriber.Transcriber
	newMixer    audio.MixerFactory
	emit        func(conference.Event)
	speakerName func(userID string) string

	mu          sync.Mutex
	run         *captionRun
	lastSpeaker string
}

type captionRun struct {
	streamID string
	language string
	mixer    audio.Mixer
	writer   transcriber.StreamWriter
	cancel   context.CancelFunc
	packets  atomic.Int64
}

func newCaptionEngine(t transcriber.Transcriber, newMixer audio.MixerFactory, emit func(conference.Event), speakerName func(string) string) *captionEngine {
	return &captionEngine{
		transcriber: t,
		newMixer:    newMixer,
		emit:        emit,
		speakerName: speakerName,
	}
}

// Start begins captioning. It is a no-op while a run is active.
func (e *captionEngine) Start(streamID, language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil {
		return nil
	}
	return e.startLocked(streamID, language)
}

func (e *captionEngine) startLocked(streamID, language string) error {
	mixer := e.newMixer()
	streamCtx, cancel := context.WithCancel(context.Background())
	writer, err := e.transcriber.StartStreaming(streamCtx, streamID, language, &captionReceiver{engine: e, streamID: streamID})
	if err != nil {
		cancel()
		mixer.Close()
		return fmt.Errorf("start caption stream: %w", err)
	}
	run := &captionRun{streamID: streamID, language: language, mixer: mixer, writer: writer, cancel: cancel}
	e.run = run
	go e.pump(streamCtx, run)
	slog.Info("local captions started", "stream_id", streamID, "language", language)
	return nil
}

func (e *captionEngine) Stop() {
	e.mu.Lock()
	run := e.run
	e.run = nil
	e.mu.Unlock()
	if run != nil {
		stopRun(run)
		slog.Info("local captions stopped", "stream_id", run.streamID, "received_opus_packets", run.packets.Load())
	}
}

// SetLanguage restarts an active run with the new language.
func (e *captionEngine) SetLanguage(language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	run := e.run
	if run == nil || run.language == language {
		return nil
	}
	e.run = nil
	stopRun(run)
	return e.startLocked(run.streamID, language)
}

func stopRun(run *captionRun) {
	run.cancel()
	if err := run.writer.Close(); err != nil {
		slog.Warn("failed to close caption stream", "error", err, "stream_id", run.streamID)
	}
	run.mixer.Close()
}

// WriteAudio feeds one relayed opus packet into the active run.
func (e *captionEngine) WriteAudio(userID string, opus []byte) {
	e.mu.Lock()
	run := e.run
	if run != nil {
		e.lastSpeaker = userID
	}
	e.mu.Unlock()
	if run == nil {
		return
	}
	run.packets.Add(1)
	run.mixer.WriteOpusPacket(userID, opus)
}

func (e *captionEngine) pump(ctx context.Context, run *captionRun) {
	ticker := time.NewTicker(audio.FrameDuration)
	statsTicker := time.NewTicker(captionStatsInterval)
	defer ticker.Stop()
	defer statsTicker.Stop()
	buf := make([]byte, audio.FrameBytes)
	var zeroFrames, writtenFrames int64
	for {
		select {
		case <-ctx.Done():
			slog.Debug("caption pump stopped", "stream_id", run.streamID, "zero_frames", zeroFrames, "written_frames", writtenFrames)
			return
		case <-statsTicker.C:
			slog.Debug("caption pipeline stats",
				"stream_id", run.streamID,
				"received_opus_packets", run.packets.Load(),
				"zero_frames", zeroFrames,
				"written_frames", writtenFrames)
		case <-ticker.C:
			n, err := run.mixer.ReadMixedPCM(buf)
			if err != nil {
				slog.Warn("failed to read mixed pcm", "error", err, "stream_id", run.streamID)
				continue
			}
			if n == 0 {
				zeroFrames++
				continue
			}
			if err := run.writer.Write(buf[:n]); err != nil {
				slog.Error("failed to write pcm to caption stream", "error", err, "stream_id", run.streamID, "pcm_bytes", n)
				return
			}
			writtenFrames++
		}
	}
}

type captionReceiver struct {
	engine   *captionEngine
	streamID string
}

func (r *captionReceiver) OnResult(_ int, text string, isFinal bool) {
	text = strings.TrimSpace(text)
	if !isFinal || text == "" {
		return
	}
	r.engine.mu.Lock()
	speaker := r.engine.lastSpeaker
	r.engine.mu.Unlock()
	r.engine.emit(conference.TranscriptionReceived{
		SpeakerName: r.engine.speakerName(speaker),
		Text:        text,
		Timestamp:   time.Now(),
	})
}

func (r *captionReceiver) OnError(err error) {
	if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "operation was cancelled") {
		slog.Info("caption stream canceled", "error", err, "stream_id", r.streamID)
		return
	}
	slog.Error("caption stream error", "error", err, "stream_id", r.streamID)
}
