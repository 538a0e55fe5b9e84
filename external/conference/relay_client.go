package conference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/huddle/internal/audio"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/transcriber"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	requestTimeout   = 10 * time.Second
	writeTimeout     = 5 * time.Second
	closeGracePeriod = time.Second
	maxFrameBytes    = 1 << 20
	eventBufferSize  = 1024
	leaveReasonLost  = "connection to relay lost"
)

var (
	ErrNotConnected     = errors.New("relay: not connected")
	ErrConnectionClosed = errors.New("relay: connection closed")
)

// RelayError is a request rejected by the relay.
type RelayError struct {
	Op      string
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay rejected %s: %s", e.Op, e.Message)
}

// RelayClient implements conference.Client over a websocket relay. Events are
// delivered in order on a single dispatch goroutine, so handlers may call back
// into the client.
type RelayClient struct {
	url      string
	dialer   *websocket.Dialer
	captions *captionEngine

	connMu      sync.Mutex
	conn        *websocket.Conn
	done        chan struct{}
	sessionName string
	writeMu     sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan inboundFrame

	handlerMu sync.RWMutex
	handler   func(conference.Event)

	namesMu sync.RWMutex
	names   map[string]string

	events       chan conference.Event
	dispatchOnce sync.Once
	stop         chan struct{}
	stopOnce     sync.Once
	closing      atomic.Bool
}

func NewRelayClient(url string, t transcriber.Transcriber, newMixer audio.MixerFactory) *RelayClient {
	c := &RelayClient{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		pending: make(map[string]chan inboundFrame),
		names:   make(map[string]string),
		events:  make(chan conference.Event, eventBufferSize),
		stop:    make(chan struct{}),
	}
	c.captions = newCaptionEngine(t, newMixer, c.emit, c.displayName)
	return c
}

func (c *RelayClient) RegisterEventHandler(handler func(conference.Event)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = handler
}

func (c *RelayClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)
	c.conn = conn
	c.done = make(chan struct{})
	c.closing.Store(false)
	c.dispatchOnce.Do(func() { go c.dispatchLoop() })
	go c.readLoop(conn, c.done)
	slog.Info("connected to relay", "url", c.url)
	return nil
}

func (c *RelayClient) current() (*websocket.Conn, chan struct{}) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn, c.done
}

// call sends one request and waits for its ack.
func (c *RelayClient) call(ctx context.Context, op string, data any) (json.RawMessage, error) {
	conn, done := c.current()
	if conn == nil {
		return nil, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan inboundFrame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	b, err := json.Marshal(outboundFrame{Type: op, RequestID: id, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", op, err)
	}
	if err := c.write(conn, websocket.TextMessage, b); err != nil {
		return nil, fmt.Errorf("send %s: %w", op, err)
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return nil, &RelayError{Op: op, Message: ack.Error}
		}
		return ack.Data, nil
	case <-done:
		return nil, fmt.Errorf("%s: %w", op, ErrConnectionClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (c *RelayClient) write(conn *websocket.Conn, messageType int, b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, b)
}

func (c *RelayClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.captions.Stop()
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			if c.closing.Load() {
				slog.Debug("relay read loop stopped", "error", err)
				return
			}
			slog.Warn("relay connection lost", "error", err)
			c.emit(conference.SessionLeft{Reason: leaveReasonLost})
			return
		}
		switch mt {
		case websocket.TextMessage:
			c.handleTextFrame(data)
		case websocket.BinaryMessage:
			c.handleAudioFrame(data)
		}
	}
}

func (c *RelayClient) handleTextFrame(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("dropping malformed relay frame", "error", err, "frame_bytes", len(data))
		return
	}
	if f.Type == frameAck {
		c.pendingMu.Lock()
		ch, ok := c.pending[f.RequestID]
		c.pendingMu.Unlock()
		if ok {
			ch <- f
		}
		return
	}
	ev, err := decodeEvent(f)
	if err != nil {
		slog.Warn("dropping relay event", "error", err, "type", f.Type)
		return
	}
	switch ev := ev.(type) {
	case conference.MembersChanged:
		c.rememberNames(ev.Members)
	case conference.SessionLeft:
		c.captions.Stop()
	}
	c.emit(ev)
}

func (c *RelayClient) handleAudioFrame(data []byte) {
	userID, opus, err := decodeAudioFrame(data)
	if err != nil {
		slog.Debug("dropping audio frame", "error", err, "frame_bytes", len(data))
		return
	}
	c.captions.WriteAudio(userID, opus)
}

func (c *RelayClient) emit(e conference.Event) {
	select {
	case c.events <- e:
	case <-c.stop:
	}
}

func (c *RelayClient) dispatchLoop() {
	for {
		select {
		case <-c.stop:
			return
		case e := <-c.events:
			c.handlerMu.RLock()
			h := c.handler
			c.handlerMu.RUnlock()
			if h != nil {
				h(e)
			}
		}
	}
}

func (c *RelayClient) rememberNames(members []conference.Member) {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.UserID] = m.DisplayName
	}
	c.namesMu.Lock()
	c.names = names
	c.namesMu.Unlock()
}

func (c *RelayClient) displayName(userID string) string {
	c.namesMu.RLock()
	defer c.namesMu.RUnlock()
	return c.names[userID]
}

func (c *RelayClient) Join(ctx context.Context, opts conference.JoinOptions) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	c.connMu.Lock()
	c.sessionName = opts.SessionName
	c.connMu.Unlock()
	_, err := c.call(ctx, opJoin, joinData{
		SessionName: opts.SessionName,
		DisplayName: opts.DisplayName,
		Password:    opts.Password,
		Token:       opts.Token,
		Role:        string(opts.Role),
		AudioOn:     opts.AudioOn,
		VideoOn:     opts.VideoOn,
	})
	return err
}

func (c *RelayClient) Leave(ctx context.Context, endForAll bool) error {
	c.captions.Stop()
	_, err := c.call(ctx, opLeave, leaveData{EndForAll: endForAll})
	return err
}

func (c *RelayClient) StartAudio(ctx context.Context) error {
	_, err := c.call(ctx, opStartAudio, nil)
	return err
}

func (c *RelayClient) MuteSelf(ctx context.Context) error {
	_, err := c.call(ctx, opMuteSelf, nil)
	return err
}

func (c *RelayClient) UnmuteSelf(ctx context.Context) error {
	_, err := c.call(ctx, opUnmuteSelf, nil)
	return err
}

func (c *RelayClient) MuteUser(ctx context.Context, userID string) error {
	_, err := c.call(ctx, opMuteUser, userData{UserID: userID})
	return err
}

func (c *RelayClient) StartVideo(ctx context.Context) error {
	_, err := c.call(ctx, opStartVideo, nil)
	return err
}

func (c *RelayClient) StopVideo(ctx context.Context) error {
	_, err := c.call(ctx, opStopVideo, nil)
	return err
}

func (c *RelayClient) SendChat(ctx context.Context, toUserID, text string) (string, error) {
	raw, err := c.call(ctx, opSendChat, chatSendData{ToUserID: toUserID, Text: text})
	if err != nil {
		return "", err
	}
	ack, err := decodeData[chatAck](raw)
	if err != nil {
		return "", fmt.Errorf("decode chat ack: %w", err)
	}
	return ack.MessageID, nil
}

func (c *RelayClient) SendCommand(ctx context.Context, toUserID string, payload []byte) error {
	_, err := c.call(ctx, opSendCommand, commandSendData{ToUserID: toUserID, Payload: string(payload)})
	return err
}

// StartTranscription starts local captions and asks the relay to forward
// participant audio.
func (c *RelayClient) StartTranscription(ctx context.Context, language string) error {
	c.connMu.Lock()
	streamID := c.sessionName
	c.connMu.Unlock()
	if err := c.captions.Start(streamID, language); err != nil {
		return err
	}
	if _, err := c.call(ctx, opSubscribeAudio, subscribeData{Enabled: true}); err != nil {
		c.captions.Stop()
		return err
	}
	return nil
}

func (c *RelayClient) StopTranscription(ctx context.Context) error {
	c.captions.Stop()
	_, err := c.call(ctx, opSubscribeAudio, subscribeData{Enabled: false})
	return err
}

func (c *RelayClient) SetTranscriptionLanguage(_ context.Context, language string) error {
	return c.captions.SetLanguage(language)
}

func (c *RelayClient) AdmitWaitingUser(ctx context.Context, userID string) error {
	_, err := c.call(ctx, opAdmitWaiting, userData{UserID: userID})
	return err
}

func (c *RelayClient) ExpelWaitingUser(ctx context.Context, userID string) error {
	_, err := c.call(ctx, opExpelWaiting, userData{UserID: userID})
	return err
}

// Close shuts down captions, the connection and the dispatch goroutine.
func (c *RelayClient) Close() error {
	c.closing.Store(true)
	c.captions.Stop()
	defer c.stopOnce.Do(func() { close(c.stop) })

	conn, done := c.current()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	select {
	case <-done:
	case <-time.After(closeGracePeriod):
	}
	return conn.Close()
}
