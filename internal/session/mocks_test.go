package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/huddle/internal/command"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/config"
	"github.com/foxseedlab/huddle/internal/repository"
	"github.com/foxseedlab/huddle/internal/webhook"
)

type sentCommand struct {
	to  string
	cmd command.Command
}

type sentChat struct {
	to   string
	text string
}

type mockClient struct {
	mu          sync.Mutex
	calls       map[string]int
	joinOpts    []conference.JoinOptions
	chats       []sentChat
	commands    []sentCommand
	mutedUsers  []string
	admitted    []string
	expelled    []string
	languages   []string
	chatCounter int
	chatIDs     bool
	failures    map[string]error
}

func newMockClient() *mockClient {
	return &mockClient{calls: map[string]int{}, failures: map[string]error{}}
}

func (m *mockClient) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.failures[name]
}

func (m *mockClient) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockClient) fail(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[name] = err
}

func (m *mockClient) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = map[string]int{}
	m.chats = nil
	m.commands = nil
}

func (m *mockClient) sentCommands() []sentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentCommand(nil), m.commands...)
}

func (m *mockClient) Join(_ context.Context, opts conference.JoinOptions) error {
	m.mu.Lock()
	m.joinOpts = append(m.joinOpts, opts)
	m.mu.Unlock()
	return m.record("Join")
}

func (m *mockClient) Leave(_ context.Context, _ bool) error     { return m.record("Leave") }
func (m *mockClient) StartAudio(_ context.Context) error         { return m.record("StartAudio") }
func (m *mockClient) MuteSelf(_ context.Context) error           { return m.record("MuteSelf") }
func (m *mockClient) UnmuteSelf(_ context.Context) error         { return m.record("UnmuteSelf") }
func (m *mockClient) StartVideo(_ context.Context) error         { return m.record("StartVideo") }
func (m *mockClient) StopVideo(_ context.Context) error          { return m.record("StopVideo") }
func (m *mockClient) StopTranscription(_ context.Context) error  { return m.record("StopTranscription") }
func (m *mockClient) RegisterEventHandler(_ func(conference.Event)) {}
func (m *mockClient) Close() error                               { return nil }

func (m *mockClient) MuteUser(_ context.Context, userID string) error {
	if err := m.record("MuteUser"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutedUsers = append(m.mutedUsers, userID)
	return nil
}

func (m *mockClient) SendChat(_ context.Context, toUserID, text string) (string, error) {
	if err := m.record("SendChat"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats = append(m.chats, sentChat{to: toUserID, text: text})
	if !m.chatIDs {
		return "", nil
	}
	m.chatCounter++
	return fmt.Sprintf("transport-%d", m.chatCounter), nil
}

func (m *mockClient) SendCommand(_ context.Context, toUserID string, payload []byte) error {
	if err := m.record("SendCommand"); err != nil {
		return err
	}
	cmd, err := command.Decode(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, sentCommand{to: toUserID, cmd: cmd})
	return nil
}

func (m *mockClient) StartTranscription(_ context.Context, language string) error {
	if err := m.record("StartTranscription"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.languages = append(m.languages, language)
	return nil
}

func (m *mockClient) SetTranscriptionLanguage(_ context.Context, language string) error {
	if err := m.record("SetTranscriptionLanguage"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.languages = append(m.languages, language)
	return nil
}

func (m *mockClient) AdmitWaitingUser(_ context.Context, userID string) error {
	if err := m.record("AdmitWaitingUser"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted = append(m.admitted, userID)
	return nil
}

func (m *mockClient) ExpelWaitingUser(_ context.Context, userID string) error {
	if err := m.record("ExpelWaitingUser"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expelled = append(m.expelled, userID)
	return nil
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now.Add(d), fn: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in order outside the lock.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var next *fakeTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		if next.at.After(s.now) {
			s.now = next.at
		}
		next.fired = true
		s.mu.Unlock()
		next.fn()
	}
}

type mockArchiveRepository struct {
	mu    sync.Mutex
	saved []repository.SaveArchiveInput
}

func (m *mockArchiveRepository) SaveArchive(_ context.Context, input repository.SaveArchiveInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, input)
	return fmt.Sprintf("archive-%d", len(m.saved)), nil
}

func (m *mockArchiveRepository) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type mockWebhookSender struct {
	mu       sync.Mutex
	payloads []webhook.ArchiveWebhookPayload
}

func (m *mockWebhookSender) SendArchive(_ context.Context, payload webhook.ArchiveWebhookPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockWebhookSender) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

type testHarness struct {
	coordinator *Coordinator
	client      *mockClient
	clock       *fakeScheduler
	repo        *mockArchiveRepository
	webhook     *mockWebhookSender
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	cfg := &config.Config{
		Env:                       "test",
		ConferenceURL:             "ws://localhost/relay",
		SessionName:               "weekly-sync",
		DisplayName:               "alice",
		DefaultTranscribeLanguage: "en-US",
	}
	h := &testHarness{
		client:  newMockClient(),
		clock:   newFakeScheduler(),
		repo:    &mockArchiveRepository{},
		webhook: &mockWebhookSender{},
	}
	h.coordinator = NewCoordinator(cfg, h.client, NewArchiver(h.repo, h.webhook), h.clock)
	return h
}

// newJoinedHarness returns a coordinator that has joined with user id "self"
// alongside "host-1" (host) and "user-2" (participant), with the post-join
// media enforcement already flushed.
func newJoinedHarness(t *testing.T, isHost bool) *testHarness {
	t.Helper()
	h := newHarness(t)
	if err := h.coordinator.Configure(Settings{SessionName: "weekly-sync", DisplayName: "alice", IsHost: isHost}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := h.coordinator.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	h.coordinator.HandleEvent(conference.SessionJoined{SelfUserID: "self"})
	selfRole := conference.RoleParticipant
	if isHost {
		selfRole = conference.RoleHost
	}
	members := []conference.Member{
		{UserID: "self", DisplayName: "alice", Role: selfRole, Muted: true, IsSelf: true},
		{UserID: "user-2", DisplayName: "bob", Role: conference.RoleParticipant, Muted: false},
	}
	if !isHost {
		members = append(members, conference.Member{UserID: "host-1", DisplayName: "carol", Role: conference.RoleHost, Muted: false})
	}
	h.coordinator.HandleEvent(conference.MembersChanged{Members: members})
	h.clock.Advance(mediaRecheckDelay)
	h.client.reset()
	return h
}

func encodeCommand(t *testing.T, cmd command.Command) []byte {
	t.Helper()
	b, err := command.Encode(cmd)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return b
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
