package session

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/huddle/internal/command"
	"github.com/foxseedlab/huddle/internal/conference"
)

// remoteTarget returns the participant a host action addresses, or false when
// the local user is not a host or the participant is unknown.
func (c *Coordinator) remoteTarget(userID string) (Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isHostLocked() {
		slog.Warn("remote control ignored; local user is not host", "user_id", userID)
		return Participant{}, false
	}
	if userID == c.selfUserID {
		return Participant{}, false
	}
	p, ok := c.participantLocked(userID)
	if !ok {
		slog.Warn("remote control ignored; unknown participant", "user_id", userID)
	}
	return p, ok
}

// ToggleRemoteAudio mutes an unmuted participant directly. A muted participant
// can only be asked to unmute itself.
func (c *Coordinator) ToggleRemoteAudio(ctx context.Context, userID string) {
	p, ok := c.remoteTarget(userID)
	if !ok {
		return
	}
	if p.Muted {
		c.broadcast(ctx, userID, command.RemoteToggleMute{})
		return
	}
	if err := c.client.MuteUser(ctx, userID); err != nil {
		slog.Error("failed to mute participant", "error", err, "user_id", userID)
		return
	}
	c.mutate(func() bool {
		return c.updateParticipantLocked(userID, func(p *Participant) bool {
			p.Muted = true
			return true
		})
	})
}

func (c *Coordinator) ToggleRemoteVideo(ctx context.Context, userID string) {
	if _, ok := c.remoteTarget(userID); !ok {
		return
	}
	c.broadcast(ctx, userID, command.RemoteToggleVideo{})
}

// SendUnmuteRequest asks the host for permission to speak.
func (c *Coordinator) SendUnmuteRequest(ctx context.Context) {
	c.mu.Lock()
	selfID, name := c.selfIdentityLocked()
	hostID := ""
	for _, p := range c.participants {
		if p.Role == conference.RoleHost && p.UserID != selfID {
			hostID = p.UserID
			break
		}
	}
	c.mu.Unlock()
	if hostID == "" {
		slog.Warn("unmute request skipped; no host present")
		return
	}
	c.broadcast(ctx, hostID, command.UnmuteRequest{UserID: selfID, UserName: name})
}

func (c *Coordinator) handleUnmuteRequest(senderID string, req command.UnmuteRequest) {
	if req.UserID == "" {
		req.UserID = senderID
	}
	if req.UserID == "" {
		return
	}
	c.mutate(func() bool {
		if !c.isHostLocked() {
			return false
		}
		c.unmuteRequest = UnmuteRequest{UserID: req.UserID, UserName: req.UserName, State: UnmuteRequestPending}
		return true
	})
}

func (c *Coordinator) ApproveUnmuteRequest(ctx context.Context) {
	var req UnmuteRequest
	c.mutate(func() bool {
		if c.unmuteRequest.State != UnmuteRequestPending {
			return false
		}
		req = c.unmuteRequest
		c.unmuteRequest.State = UnmuteRequestResolved
		return true
	})
	if req.UserID == "" {
		return
	}
	c.broadcast(ctx, req.UserID, command.UnmuteApproved{})
}

func (c *Coordinator) DismissUnmuteRequest() {
	c.mutate(func() bool {
		if c.unmuteRequest.State != UnmuteRequestPending {
			return false
		}
		c.unmuteRequest.State = UnmuteRequestResolved
		return true
	})
}

// senderCanControl reports whether senderID is a host or manager.
func (c *Coordinator) senderCanControl(senderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participantLocked(senderID)
	return ok && p.Role.CanControlOthers()
}

func (c *Coordinator) handleRemoteControl(ctx context.Context, senderID string, cmd command.Command) {
	if !c.senderCanControl(senderID) {
		slog.Warn("ignoring remote control from non-host", "sender_id", senderID, "type", cmd.CommandType())
		return
	}
	switch cmd.(type) {
	case command.RemoteToggleMute:
		c.ToggleMute(ctx)
	case command.RemoteToggleVideo:
		c.ToggleVideo(ctx)
	case command.UnmuteApproved:
		if c.Snapshot().Muted {
			c.ToggleMute(ctx)
		}
	}
}
