package conference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/huddle/internal/audio"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/transcriber"
	"github.com/gorilla/websocket"
)

type fakeMixer struct {
	mu      sync.Mutex
	packets []string
	pcm     []byte
	closed  bool
}

func (m *fakeMixer) WriteOpusPacket(userID string, _ []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, userID)
}

func (m *fakeMixer) ReadMixedPCM(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pcm) == 0 {
		return 0, nil
	}
	n := copy(buf, m.pcm)
	m.pcm = nil
	return n, nil
}

func (m *fakeMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMixer) packetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

func (m *fakeMixer) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mixerRecorder struct {
	mu     sync.Mutex
	mixers []*fakeMixer
	pcm    []byte
}

func (r *mixerRecorder) factory() audio.MixerFactory {
	return func() audio.Mixer {
		r.mu.Lock()
		defer r.mu.Unlock()
		m := &fakeMixer{pcm: r.pcm}
		r.mixers = append(r.mixers, m)
		return m
	}
}

func (r *mixerRecorder) last() *fakeMixer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.mixers) == 0 {
		return nil
	}
	return r.mixers[len(r.mixers)-1]
}

type fakeStreamWriter struct {
	mu     sync.Mutex
	writes int
	closed bool
}

func (w *fakeStreamWriter) Write([]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	return nil
}

func (w *fakeStreamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeStreamWriter) state() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes, w.closed
}

type fakeTranscriber struct {
	mu        sync.Mutex
	err       error
	streamIDs []string
	languages []string
	receivers []transcriber.ResultReceiver
	writers   []*fakeStreamWriter
}

func (f *fakeTranscriber) StartStreaming(_ context.Context, streamID, language string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	w := &fakeStreamWriter{}
	f.streamIDs = append(f.streamIDs, streamID)
	f.languages = append(f.languages, language)
	f.receivers = append(f.receivers, receiver)
	f.writers = append(f.writers, w)
	return w, nil
}

func (f *fakeTranscriber) receiver(i int) transcriber.ResultReceiver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receivers[i]
}

func (f *fakeTranscriber) writer(i int) *fakeStreamWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[i]
}

type recordedRequest struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// fakeRelay acks every request and lets tests push events to the client.
type fakeRelay struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader
	reply    func(recordedRequest) (any, string)

	mu       sync.Mutex
	conn     *websocket.Conn
	requests []recordedRequest
	writeMu  sync.Mutex
}

func newFakeRelay(t *testing.T, reply func(recordedRequest) (any, string)) *fakeRelay {
	t.Helper()
	r := &fakeRelay{t: t, reply: reply}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *fakeRelay) serve(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.t.Errorf("upgrade failed: %v", err)
		return
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var rr recordedRequest
		if err := json.Unmarshal(data, &rr); err != nil {
			r.t.Errorf("invalid request frame: %v", err)
			continue
		}
		r.mu.Lock()
		r.requests = append(r.requests, rr)
		r.mu.Unlock()
		var result any
		var errMsg string
		if r.reply != nil {
			result, errMsg = r.reply(rr)
		}
		r.send(map[string]any{"type": frameAck, "requestId": rr.RequestID, "error": errMsg, "data": result})
	}
}

func (r *fakeRelay) send(v any) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		r.t.Errorf("relay write failed: %v", err)
	}
}

func (r *fakeRelay) push(frameType string, data any) {
	r.send(map[string]any{"type": frameType, "data": data})
}

func (r *fakeRelay) pushBinary(b []byte) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		r.t.Errorf("relay binary write failed: %v", err)
	}
}

func (r *fakeRelay) dropConnection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.Close()
}

func (r *fakeRelay) requestsOf(op string) []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedRequest
	for _, rr := range r.requests {
		if rr.Type == op {
			out = append(out, rr)
		}
	}
	return out
}

func newTestClient(t *testing.T, url string, tr transcriber.Transcriber, newMixer audio.MixerFactory) (*RelayClient, <-chan conference.Event) {
	t.Helper()
	c := NewRelayClient(url, tr, newMixer)
	events := make(chan conference.Event, 64)
	c.RegisterEventHandler(func(e conference.Event) { events <- e })
	t.Cleanup(func() { _ = c.Close() })
	return c, events
}

func waitForEvent[T conference.Event](t *testing.T, events <-chan conference.Event) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if ev, ok := e.(T); ok {
				return ev
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}

const maxAudioUserIDSize = 255

// encodeAudioFrame builds the binary frame the relay sends for one opus packet.
func encodeAudioFrame(userID string, opus []byte) ([]byte, error) {
	if len(userID) == 0 || len(userID) > maxAudioUserIDSize {
		return nil, fmt.Errorf("%w: user id length %d", errMalformedAudio, len(userID))
	}
	b := make([]byte, 0, 1+len(userID)+len(opus))
	b = append(b, byte(len(userID)))
	b = append(b, userID...)
	return append(b, opus...), nil
}

func (e *captionEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run != nil
}
