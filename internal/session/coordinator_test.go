package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/huddle/internal/conference"
)

func TestConfigure_PrefixesHostNameAndRejectsSecondCall(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Configure(Settings{SessionName: "weekly-sync", DisplayName: "alice", IsHost: true}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if got := h.coordinator.Snapshot().DisplayName; got != "(Host) alice" {
		t.Fatalf("unexpected display name: %q", got)
	}

	err := h.coordinator.Configure(Settings{SessionName: "other", DisplayName: "mallory"})
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("expected ErrAlreadyConfigured, got %v", err)
	}
	if got := h.coordinator.Snapshot().DisplayName; got != "(Host) alice" {
		t.Fatalf("second configure must not change settings, got %q", got)
	}
}

func TestJoin_RequiresConfigure(t *testing.T) {
	h := newHarness(t)

	err := h.coordinator.Join(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if h.client.count("Join") != 0 {
		t.Fatal("transport join must not be called before configure")
	}
}

func TestJoin_StatusTransitionsAndMediaOff(t *testing.T) {
	h := newHarness(t)
	var statuses []string
	h.coordinator.Subscribe(func(s State) {
		if len(statuses) == 0 || statuses[len(statuses)-1] != s.Status {
			statuses = append(statuses, s.Status)
		}
	})

	if err := h.coordinator.Configure(Settings{SessionName: "weekly-sync", DisplayName: "alice"}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := h.coordinator.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(h.client.joinOpts) != 1 {
		t.Fatalf("expected one join call, got %d", len(h.client.joinOpts))
	}
	opts := h.client.joinOpts[0]
	if opts.AudioOn || opts.VideoOn {
		t.Fatalf("join must start with audio and video off: %+v", opts)
	}
	if opts.Role != conference.RoleParticipant {
		t.Fatalf("unexpected role: %s", opts.Role)
	}

	h.coordinator.HandleEvent(conference.SessionJoined{SelfUserID: "self"})

	want := []string{statusConnecting, statusJoining, statusConnected}
	if len(statuses) != len(want) {
		t.Fatalf("unexpected status sequence: %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("unexpected status sequence: %v", statuses)
		}
	}

	snap := h.coordinator.Snapshot()
	if !snap.Joined || snap.SelfUserID != "self" {
		t.Fatalf("unexpected joined state: %+v", snap)
	}
	if h.client.count("MuteSelf") != 1 || h.client.count("StopVideo") != 1 {
		t.Fatalf("expected immediate media enforcement, calls=%v", h.client.calls)
	}

	h.clock.Advance(mediaRecheckDelay)
	if h.client.count("MuteSelf") != 2 || h.client.count("StopVideo") != 2 {
		t.Fatalf("expected delayed media enforcement, calls=%v", h.client.calls)
	}
}

func TestJoin_FailureSetsFailedStatus(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("boom")
	h.client.fail("Join", boom)
	if err := h.coordinator.Configure(Settings{SessionName: "weekly-sync", DisplayName: "alice"}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	err := h.coordinator.Join(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if got := h.coordinator.Snapshot().Status; got != statusJoinFailed {
		t.Fatalf("unexpected status: %q", got)
	}
}

func TestSessionError_SetsErrorStatus(t *testing.T) {
	h := newJoinedHarness(t, false)

	h.coordinator.HandleEvent(conference.SessionError{Code: 3, Message: "meeting locked"})

	if got := h.coordinator.Snapshot().Status; got != "Error: meeting locked" {
		t.Fatalf("unexpected status: %q", got)
	}
}

func TestSessionLeft_ArchivesJoinedSession(t *testing.T) {
	h := newJoinedHarness(t, false)
	h.coordinator.SendChatMessage(context.Background(), "see you")
	h.clock.Advance(10 * time.Minute)

	h.coordinator.HandleEvent(conference.SessionLeft{Reason: "ended by host"})

	snap := h.coordinator.Snapshot()
	if snap.Joined || snap.Status != statusDisconnected {
		t.Fatalf("unexpected state after leave: joined=%v status=%q", snap.Joined, snap.Status)
	}
	waitUntil(t, time.Second, func() bool {
		return h.repo.savedCount() == 1 && h.webhook.sentCount() == 1
	}, "archive was not saved and sent")

	h.repo.mu.Lock()
	saved := h.repo.saved[0]
	h.repo.mu.Unlock()
	if saved.SessionName != "weekly-sync" || saved.LeaveReason != "ended by host" {
		t.Fatalf("unexpected archive: %+v", saved)
	}
	if len(saved.Messages) != 1 || saved.Messages[0].Text != "see you" {
		t.Fatalf("unexpected archived messages: %+v", saved.Messages)
	}
	if len(saved.Participants) != 3 {
		t.Fatalf("unexpected archived participants: %+v", saved.Participants)
	}

	h.webhook.mu.Lock()
	payload := h.webhook.payloads[0]
	h.webhook.mu.Unlock()
	if payload.ArchiveID != "archive-1" || payload.DurationSeconds != 601 {
		t.Fatalf("unexpected webhook payload: %+v", payload)
	}
}

func TestSessionLeft_BeforeJoinDoesNotArchive(t *testing.T) {
	h := newHarness(t)

	h.coordinator.HandleEvent(conference.SessionLeft{Reason: "network"})

	if got := h.coordinator.Snapshot().Status; got != statusDisconnected {
		t.Fatalf("unexpected status: %q", got)
	}
	if h.repo.savedCount() != 0 {
		t.Fatal("a session that never joined must not be archived")
	}
}

func TestLeave_TransportFailureStillDisconnects(t *testing.T) {
	h := newJoinedHarness(t, true)
	h.client.fail("Leave", errors.New("socket closed"))

	h.coordinator.Leave(context.Background(), true)

	if h.coordinator.Snapshot().Joined {
		t.Fatal("expected local state to leave even when the transport fails")
	}
	waitUntil(t, time.Second, func() bool { return h.repo.savedCount() == 1 }, "archive was not saved")
}

func TestLeave_NotJoinedIsNoop(t *testing.T) {
	h := newHarness(t)

	h.coordinator.Leave(context.Background(), false)

	if h.client.count("Leave") != 0 {
		t.Fatal("leave must not reach the transport before joining")
	}
}

func TestMemberEvents_UpdateParticipantsAndSelf(t *testing.T) {
	h := newJoinedHarness(t, false)

	h.coordinator.HandleEvent(conference.AudioStatusChanged{UserID: "user-2", Muted: true})
	h.coordinator.HandleEvent(conference.AudioStatusChanged{UserID: "self", Muted: false, Connected: true})
	h.coordinator.HandleEvent(conference.VideoStatusChanged{UserID: "user-2", On: true})
	h.coordinator.HandleEvent(conference.ShareStatusChanged{UserID: "host-1", Sharing: true})

	snap := h.coordinator.Snapshot()
	byID := map[string]Participant{}
	for _, p := range snap.Participants {
		byID[p.UserID] = p
	}
	if !byID["user-2"].Muted || !byID["user-2"].VideoOn {
		t.Fatalf("unexpected participant state: %+v", byID["user-2"])
	}
	if !byID["host-1"].Sharing {
		t.Fatalf("expected host to be sharing: %+v", byID["host-1"])
	}
	if snap.Muted || !snap.AudioConnected {
		t.Fatalf("expected self audio connected and unmuted: %+v", snap)
	}
}

func TestSubscribe_ReceivesSnapshotsOnChange(t *testing.T) {
	h := newJoinedHarness(t, false)
	var got []State
	h.coordinator.Subscribe(func(s State) { got = append(got, s) })

	h.coordinator.SendChatMessage(context.Background(), "hello")

	if len(got) != 1 {
		t.Fatalf("expected one notification, got %d", len(got))
	}
	if len(got[0].Messages) != 1 {
		t.Fatalf("snapshot missing message: %+v", got[0].Messages)
	}

	h.coordinator.HandleEvent(conference.ShareStatusChanged{UserID: "user-2", Sharing: false})
	if len(got) != 1 {
		t.Fatal("unchanged state must not notify subscribers")
	}
}

func TestSubscribe_SnapshotsArriveInVersionOrder(t *testing.T) {
	h := newJoinedHarness(t, false)
	var mu sync.Mutex
	var versions []uint64
	nested := false
	h.coordinator.Subscribe(func(s State) {
		mu.Lock()
		versions = append(versions, s.Version)
		first := !nested
		nested = true
		mu.Unlock()
		if first {
			h.coordinator.HandleEvent(conference.ChatReceived{MessageID: "from-subscriber", SenderID: "user-2", Text: "nested"})
		}
	})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.coordinator.HandleEvent(conference.ChatReceived{MessageID: fmt.Sprintf("m-%d", i), SenderID: "user-2", Text: "hi"})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(versions) != 21 {
		t.Fatalf("expected 21 notifications, got %d", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[i-1]+1 {
			t.Fatalf("notifications out of order: %v", versions)
		}
	}
	if last := versions[len(versions)-1]; last != h.coordinator.Snapshot().Version {
		t.Fatalf("last notified version %d, current %d", last, h.coordinator.Snapshot().Version)
	}
}
