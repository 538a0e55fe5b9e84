package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/huddle/internal/command"
	"github.com/google/uuid"
)

// SendReaction toggles the local raised hand for RaiseHandEmoji and shows any
// other emoji as a short-lived reaction. Both are broadcast to peers.
func (c *Coordinator) SendReaction(ctx context.Context, emoji string) {
	if strings.TrimSpace(emoji) == "" {
		return
	}
	if emoji == RaiseHandEmoji {
		c.toggleRaiseHand(ctx)
		return
	}

	var reaction command.Reaction
	c.mutate(func() bool {
		selfID, name := c.selfIdentityLocked()
		reaction = command.Reaction{Emoji: emoji, SenderName: name, SenderID: selfID}
		c.addReactionLocked(selfID, name, emoji)
		return true
	})
	c.broadcast(ctx, "", reaction)
}

func (c *Coordinator) addReactionLocked(senderID, senderName, emoji string) {
	c.reactions = appended(c.reactions, ReactionEmoji{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		Emoji:      emoji,
		Timestamp:  c.scheduler.Now(),
	})
	c.armCleanupLocked()
}

func (c *Coordinator) handleReactionCommand(senderID string, r command.Reaction) {
	if r.Emoji == "" {
		return
	}
	if r.SenderID == "" {
		r.SenderID = senderID
	}
	c.mutate(func() bool {
		c.addReactionLocked(r.SenderID, r.SenderName, r.Emoji)
		return true
	})
}

// CleanUpExpiredReactions drops every reaction at least reactionTTL old and
// re-arms itself for the next one to expire.
func (c *Coordinator) CleanUpExpiredReactions() {
	c.mutate(func() bool {
		c.cleanupTimer = nil
		c.cleanupAt = time.Time{}
		now := c.scheduler.Now()
		var removed bool
		c.reactions, removed = without(c.reactions, func(r ReactionEmoji) bool {
			return now.Sub(r.Timestamp) >= reactionTTL
		})
		c.armCleanupLocked()
		return removed
	})
}

func (c *Coordinator) armCleanupLocked() {
	if len(c.reactions) == 0 {
		if c.cleanupTimer != nil {
			c.cleanupTimer.Stop()
			c.cleanupTimer = nil
			c.cleanupAt = time.Time{}
		}
		return
	}
	due := c.reactions[0].Timestamp.Add(reactionTTL)
	for _, r := range c.reactions[1:] {
		if at := r.Timestamp.Add(reactionTTL); at.Before(due) {
			due = at
		}
	}
	if c.cleanupTimer != nil && !c.cleanupAt.After(due) {
		return
	}
	if c.cleanupTimer != nil {
		c.cleanupTimer.Stop()
	}
	delay := due.Sub(c.scheduler.Now())
	if delay < 0 {
		delay = 0
	}
	c.cleanupAt = due
	c.cleanupTimer = c.scheduler.AfterFunc(delay, c.CleanUpExpiredReactions)
}

func (c *Coordinator) toggleRaiseHand(ctx context.Context) {
	var cmd command.RaiseHand
	c.mutate(func() bool {
		selfID, name := c.selfIdentityLocked()
		stamp := c.nextHandStampLocked()
		raised := !c.handRaisedLocked(selfID)
		cmd = command.RaiseHand{UserID: selfID, UserName: name, Raised: raised, Timestamp: stamp}
		return c.applyRaiseHandLocked(cmd)
	})
	c.broadcast(ctx, "", cmd)
}

// nextHandStampLocked returns a millisecond timestamp strictly greater than
// every stamp this client has issued or observed.
func (c *Coordinator) nextHandStampLocked() int64 {
	stamp := c.scheduler.Now().UnixMilli()
	if stamp <= c.lastHandStamp {
		stamp = c.lastHandStamp + 1
	}
	c.lastHandStamp = stamp
	return stamp
}

func (c *Coordinator) handRaisedLocked(userID string) bool {
	for _, h := range c.raisedHands {
		if h.UserID == userID {
			return true
		}
	}
	return false
}

// applyRaiseHandLocked applies a raise or lower unless an event with a newer
// timestamp from the same user has already been applied.
func (c *Coordinator) applyRaiseHandLocked(cmd command.RaiseHand) bool {
	if last, ok := c.handClock[cmd.UserID]; ok && cmd.Timestamp < last {
		slog.Debug("dropping stale raise hand", "user_id", cmd.UserID, "timestamp", cmd.Timestamp, "last", last)
		return false
	}
	c.handClock[cmd.UserID] = cmd.Timestamp
	if cmd.Timestamp > c.lastHandStamp {
		c.lastHandStamp = cmd.Timestamp
	}
	hands, removed := without(c.raisedHands, func(h RaisedHand) bool { return h.UserID == cmd.UserID })
	if !cmd.Raised {
		c.raisedHands = hands
		return removed
	}
	c.raisedHands = appended(hands, RaisedHand{UserID: cmd.UserID, UserName: cmd.UserName, Timestamp: cmd.Timestamp})
	return true
}

func (c *Coordinator) handleRaiseHandCommand(senderID string, cmd command.RaiseHand) {
	if cmd.UserID == "" {
		cmd.UserID = senderID
	}
	if cmd.UserID == "" {
		return
	}
	c.mutate(func() bool {
		return c.applyRaiseHandLocked(cmd)
	})
}
