package transcriber

import (
	"context"
	"errors"
	"io"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/huddle/internal/transcriber"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsReconnectableStreamError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof text", err: errors.New("rpc error: unexpected EOF"), want: true},
		{name: "duration limit", err: status.Error(codes.Aborted, "Exceeded maximum allowed stream duration: max duration of 5 minutes"), want: true},
		{name: "idle timeout", err: status.Error(codes.Aborted, "Stream timed out after receiving no more client requests."), want: true},
		{name: "other abort", err: status.Error(codes.Aborted, "something else"), want: false},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "denied"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isReconnectableStreamError(tt.err); got != tt.want {
				t.Fatalf("isReconnectableStreamError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewCloudSpeechTranscriber_Defaults(t *testing.T) {
	tr := NewCloudSpeechTranscriber(CloudSpeechConfig{ProjectID: "proj", Location: "  ", Model: ""}).(*CloudSpeechTranscriber)

	if tr.location != defaultSpeechLocation || tr.model != defaultSpeechModel {
		t.Fatalf("unexpected defaults: location=%q model=%q", tr.location, tr.model)
	}
	if got := tr.recognizerName(); got != "projects/proj/locations/global/recognizers/_" {
		t.Fatalf("unexpected recognizer: %s", got)
	}
}

func TestBuildStreamingConfigRequest(t *testing.T) {
	req := buildStreamingConfigRequest("projects/p/locations/asia-northeast1/recognizers/_", "long", "ja-JP")

	if req.GetRecognizer() != "projects/p/locations/asia-northeast1/recognizers/_" {
		t.Fatalf("unexpected recognizer: %s", req.GetRecognizer())
	}
	cfg := req.GetStreamingConfig()
	if cfg == nil || !cfg.GetStreamingFeatures().GetInterimResults() {
		t.Fatal("expected interim results enabled")
	}
	langs := cfg.GetConfig().GetLanguageCodes()
	if len(langs) != 1 || langs[0] != "ja-JP" {
		t.Fatalf("unexpected languages: %v", langs)
	}
	dec := cfg.GetConfig().GetExplicitDecodingConfig()
	if dec.GetSampleRateHertz() != audioSampleRateHertz || dec.GetAudioChannelCount() != audioChannelCount {
		t.Fatalf("unexpected decoding config: %+v", dec)
	}
}

func TestFirstTranscript(t *testing.T) {
	if _, ok := firstTranscript(&speechpb.StreamingRecognitionResult{}); ok {
		t.Fatal("expected no transcript without alternatives")
	}
	blank := &speechpb.StreamingRecognitionResult{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "  "}}}
	if _, ok := firstTranscript(blank); ok {
		t.Fatal("expected blank transcript to be skipped")
	}
	res := &speechpb.StreamingRecognitionResult{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " hello "}, {Transcript: "yellow"}}}
	if got, ok := firstTranscript(res); !ok || got != "hello" {
		t.Fatalf("unexpected transcript: %q %v", got, ok)
	}
}

func TestUnavailableTranscriber(t *testing.T) {
	_, err := NewUnavailableTranscriber().StartStreaming(context.Background(), "s", "en-US", nil)
	if !errors.Is(err, transcriber.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
