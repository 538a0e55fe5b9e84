package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/huddle/internal/command"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/config"
)

var (
	ErrNotConfigured     = errors.New("session: not configured")
	ErrAlreadyConfigured = errors.New("session: already configured")
)

type Settings struct {
	SessionName string
	DisplayName string
	Password    string
	Token       string
	IsHost      bool
}

// SettingsFromConfig builds join settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SessionName: cfg.SessionName,
		DisplayName: cfg.DisplayName,
		Password:    cfg.SessionPassword,
		Token:       cfg.SessionToken,
		IsHost:      cfg.SessionIsHost,
	}
}

// Coordinator owns every piece of mutable session state. All mutation happens
// under mu and replaces whole collections, so snapshots are never torn.
type Coordinator struct {
	cfg       *config.Config
	client    conference.Client
	archiver  *Archiver
	scheduler Scheduler

	mu          sync.Mutex
	subscribers []func(State)
	version     uint64
	// outbox holds snapshots awaiting delivery, in mutation order. Only the
	// goroutine that set delivering drains it.
	outbox      []State
	delivering  bool

	configured bool
	settings   Settings
	status     string
	joined     bool
	joinedAt   time.Time
	selfUserID string

	muted          bool
	videoOn        bool
	audioConnected bool
	unmutePending  bool
	// Bumped on every user media action so delayed enforcement can tell
	// whether the user has changed state since it was scheduled.
	audioIntent int
	videoIntent int

	participants []Participant
	messages     []ChatMessage
	// aliases maps transport ids to canonical message ids.
	aliases map[string]string
	// confirmed holds canonical ids already matched to a transport echo.
	confirmed       map[string]struct{}
	// echoIDs maps a local message id to the transport id peers know it by,
	// for echoes that arrived without the embedded id.
	echoIDs         map[string]string
	parkedReactions map[string][]command.ChatReaction
	parkedCount     int

	transcriptions        []TranscriptionMessage
	transcriptionOn       bool
	transcriptionLanguage string

	reactions    []ReactionEmoji
	cleanupTimer Timer
	cleanupAt    time.Time

	raisedHands   []RaisedHand
	handClock     map[string]int64
	lastHandStamp int64

	waitingRoom   []WaitingRoomUser
	unmuteRequest UnmuteRequest
}

func NewCoordinator(cfg *config.Config, client conference.Client, archiver *Archiver, scheduler Scheduler) *Coordinator {
	if scheduler == nil {
		scheduler = NewRealScheduler()
	}
	return &Coordinator{
		cfg:                   cfg,
		client:                client,
		archiver:              archiver,
		scheduler:             scheduler,
		status:                statusIdle,
		muted:                 true,
		aliases:               make(map[string]string),
		confirmed:             make(map[string]struct{}),
		echoIDs:               make(map[string]string),
		parkedReactions:       make(map[string][]command.ChatReaction),
		handClock:             make(map[string]int64),
		transcriptionLanguage: cfg.DefaultTranscribeLanguage,
		unmuteRequest:         UnmuteRequest{State: UnmuteRequestNone},
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs outside the coordinator lock.
func (c *Coordinator) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() State {
	return State{
		Version:               c.version,
		Status:                c.status,
		Joined:                c.joined,
		IsHost:                c.isHostLocked(),
		SelfUserID:            c.selfUserID,
		DisplayName:           c.settings.DisplayName,
		Muted:                 c.muted,
		VideoOn:               c.videoOn,
		AudioConnected:        c.audioConnected,
		UnmutePending:         c.unmutePending,
		TranscriptionOn:       c.transcriptionOn,
		TranscriptionLanguage: c.transcriptionLanguage,
		Participants:          c.participants,
		Messages:              c.messages,
		Transcriptions:        c.transcriptions,
		Reactions:             c.reactions,
		RaisedHands:           c.raisedHands,
		WaitingRoom:           c.waitingRoom,
		UnmuteRequest:         c.unmuteRequest,
	}
}

// mutate applies fn under the lock and notifies subscribers when fn reports a
// change. Snapshots reach subscribers in version order, outside the lock; a
// mutation made while another goroutine is delivering is handed to it.
func (c *Coordinator) mutate(fn func() bool) {
	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return
	}
	c.version++
	c.outbox = append(c.outbox, c.snapshotLocked())
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	c.mu.Unlock()
	c.deliver()
}

func (c *Coordinator) deliver() {
	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		batch := c.outbox
		c.outbox = nil
		subs := c.subscribers
		c.mu.Unlock()
		for _, snap := range batch {
			for _, sub := range subs {
				sub(snap)
			}
		}
	}
}

func (c *Coordinator) Configure(s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configured {
		return ErrAlreadyConfigured
	}
	if s.IsHost {
		s.DisplayName = hostNamePrefix + s.DisplayName
	}
	c.settings = s
	c.configured = true
	slog.Info("session configured", "session_name", s.SessionName, "display_name", s.DisplayName, "is_host", s.IsHost)
	return nil
}

func (c *Coordinator) Join(ctx context.Context) error {
	c.mu.Lock()
	if !c.configured {
		c.mu.Unlock()
		return ErrNotConfigured
	}
	settings := c.settings
	c.mu.Unlock()

	c.setStatus(statusConnecting)
	role := conference.RoleParticipant
	if settings.IsHost {
		role = conference.RoleHost
	}
	opts := conference.JoinOptions{
		SessionName: settings.SessionName,
		DisplayName: settings.DisplayName,
		Password:    settings.Password,
		Token:       settings.Token,
		Role:        role,
		AudioOn:     false,
		VideoOn:     false,
	}
	c.setStatus(statusJoining)
	slog.Info("joining session", "session_name", settings.SessionName, "role", role)
	if err := c.client.Join(ctx, opts); err != nil {
		c.setStatus(statusJoinFailed)
		slog.Error("failed to join session", "error", err, "session_name", settings.SessionName)
		return fmt.Errorf("join session %q: %w", settings.SessionName, err)
	}
	return nil
}

// Leave leaves the session. A host may end it for every participant.
func (c *Coordinator) Leave(ctx context.Context, endForAll bool) {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	endForAll = endForAll && c.isHostLocked()
	c.mu.Unlock()

	c.setStatus(statusLeaving)
	if err := c.client.Leave(ctx, endForAll); err != nil {
		slog.Error("failed to leave session", "error", err, "end_for_all", endForAll)
		c.handleLeft(leaveReasonLocal)
	}
}

func (c *Coordinator) setStatus(status string) {
	c.mutate(func() bool {
		if c.status == status {
			return false
		}
		c.status = status
		return true
	})
}

func (c *Coordinator) isHostLocked() bool {
	if c.settings.IsHost {
		return true
	}
	if p, ok := c.participantLocked(c.selfUserID); ok {
		return p.Role.CanControlOthers()
	}
	return false
}

func (c *Coordinator) participantLocked(userID string) (Participant, bool) {
	if userID == "" {
		return Participant{}, false
	}
	for _, p := range c.participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Coordinator) updateParticipantLocked(userID string, fn func(*Participant) bool) bool {
	for i, p := range c.participants {
		if p.UserID != userID {
			continue
		}
		if !fn(&p) {
			return false
		}
		c.participants = replaceAt(c.participants, i, p)
		return true
	}
	return false
}

// HandleEvent reduces one inbound transport event into session state.
func (c *Coordinator) HandleEvent(e conference.Event) {
	slog.Debug("conference event received", "event", conference.Name(e))
	switch ev := e.(type) {
	case conference.SessionJoined:
		c.handleJoined(ev)
	case conference.SessionLeft:
		c.handleLeft(ev.Reason)
	case conference.SessionError:
		slog.Error("conference reported error", "code", ev.Code, "message", ev.Message)
		c.setStatus(statusForError(ev.Message))
	case conference.MembersChanged:
		c.handleMembersChanged(ev)
	case conference.AudioStatusChanged:
		c.handleAudioStatus(ev)
	case conference.VideoStatusChanged:
		c.handleVideoStatus(ev)
	case conference.ShareStatusChanged:
		c.mutate(func() bool {
			return c.updateParticipantLocked(ev.UserID, func(p *Participant) bool {
				if p.Sharing == ev.Sharing {
					return false
				}
				p.Sharing = ev.Sharing
				return true
			})
		})
	case conference.ChatReceived:
		c.handleChatReceived(ev)
	case conference.CommandReceived:
		c.HandleCommand(ev.SenderID, ev.Payload)
	case conference.TranscriptionReceived:
		c.handleTranscription(ev)
	case conference.WaitingUserArrived:
		c.handleWaitingUserArrived(ev)
	default:
		slog.Warn("ignoring unsupported conference event", "event", conference.Name(e))
	}
}

func (c *Coordinator) handleJoined(ev conference.SessionJoined) {
	c.mutate(func() bool {
		c.joined = true
		c.joinedAt = c.scheduler.Now()
		c.status = statusConnected
		if ev.SelfUserID != "" {
			c.selfUserID = ev.SelfUserID
		}
		return true
	})
	slog.Info("session joined", "self_user_id", ev.SelfUserID)
	c.EnsureAudioVideoOff(context.Background())
}

func (c *Coordinator) handleLeft(reason string) {
	var snap State
	var settings Settings
	var startedAt time.Time
	wasJoined := false
	c.mutate(func() bool {
		wasJoined = c.joined
		c.joined = false
		c.status = statusDisconnected
		c.unmutePending = false
		c.audioConnected = false
		if c.cleanupTimer != nil {
			c.cleanupTimer.Stop()
			c.cleanupTimer = nil
		}
		snap = c.snapshotLocked()
		settings = c.settings
		startedAt = c.joinedAt
		return true
	})
	slog.Info("session left", "reason", reason, "was_joined", wasJoined)
	if wasJoined && c.archiver != nil {
		c.archiver.ArchiveAsync(settings, startedAt, c.scheduler.Now(), reason, snap)
	}
}

func (c *Coordinator) handleMembersChanged(ev conference.MembersChanged) {
	participants := make([]Participant, 0, len(ev.Members))
	selfID := ""
	for _, m := range ev.Members {
		if m.UserID == "" {
			continue
		}
		if m.IsSelf {
			selfID = m.UserID
		}
		participants = append(participants, Participant{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			Muted:       m.Muted,
			VideoOn:     m.VideoOn,
			Sharing:     m.Sharing,
		})
	}
	c.mutate(func() bool {
		c.participants = participants
		if selfID != "" {
			c.selfUserID = selfID
		}
		return true
	})
}

func (c *Coordinator) handleAudioStatus(ev conference.AudioStatusChanged) {
	c.mutate(func() bool {
		changed := c.updateParticipantLocked(ev.UserID, func(p *Participant) bool {
			if p.Muted == ev.Muted {
				return false
			}
			p.Muted = ev.Muted
			return true
		})
		if ev.UserID == c.selfUserID {
			if ev.Connected && !c.audioConnected {
				c.audioConnected = true
				changed = true
			}
			if !c.unmutePending && c.muted != ev.Muted {
				c.muted = ev.Muted
				changed = true
			}
		}
		return changed
	})
}

func (c *Coordinator) handleVideoStatus(ev conference.VideoStatusChanged) {
	c.mutate(func() bool {
		changed := c.updateParticipantLocked(ev.UserID, func(p *Participant) bool {
			if p.VideoOn == ev.On {
				return false
			}
			p.VideoOn = ev.On
			return true
		})
		if ev.UserID == c.selfUserID && c.videoOn != ev.On {
			c.videoOn = ev.On
			changed = true
		}
		return changed
	})
}

func (c *Coordinator) selfIdentityLocked() (string, string) {
	return c.selfUserID, c.settings.DisplayName
}

// broadcast sends cmd to every peer, or to one user when toUserID is set.
// Failures are logged and dropped; the command channel is best effort.
func (c *Coordinator) broadcast(ctx context.Context, toUserID string, cmd command.Command) {
	payload, err := command.Encode(cmd)
	if err != nil {
		slog.Error("failed to encode command", "error", err, "type", cmd.CommandType())
		return
	}
	if err := c.client.SendCommand(ctx, toUserID, payload); err != nil {
		slog.Warn("failed to send command", "error", err, "type", cmd.CommandType(), "to_user_id", toUserID)
	}
}
