package session

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/huddle/internal/conference"
)

func (c *Coordinator) handleWaitingUserArrived(ev conference.WaitingUserArrived) {
	if ev.UserID == "" {
		return
	}
	c.mutate(func() bool {
		if !c.isHostLocked() {
			return false
		}
		for _, u := range c.waitingRoom {
			if u.UserID == ev.UserID {
				return false
			}
		}
		arrived := ev.ArrivedAt
		if arrived.IsZero() {
			arrived = c.scheduler.Now()
		}
		c.waitingRoom = appended(c.waitingRoom, WaitingRoomUser{UserID: ev.UserID, DisplayName: ev.DisplayName, ArrivedAt: arrived})
		return true
	})
}

// takeWaitingUsers removes the matching users from the waiting room and
// returns them. It is a no-op for non-hosts.
func (c *Coordinator) takeWaitingUsers(match func(WaitingRoomUser) bool) []WaitingRoomUser {
	var taken []WaitingRoomUser
	c.mutate(func() bool {
		if !c.isHostLocked() {
			slog.Warn("waiting room action ignored; local user is not host")
			return false
		}
		var removed bool
		c.waitingRoom, removed = without(c.waitingRoom, func(u WaitingRoomUser) bool {
			if match(u) {
				taken = append(taken, u)
				return true
			}
			return false
		})
		return removed
	})
	return taken
}

func (c *Coordinator) AdmitWaitingUser(ctx context.Context, userID string) {
	for _, u := range c.takeWaitingUsers(func(u WaitingRoomUser) bool { return u.UserID == userID }) {
		c.admit(ctx, u)
	}
}

func (c *Coordinator) AdmitAllWaitingUsers(ctx context.Context) {
	for _, u := range c.takeWaitingUsers(func(WaitingRoomUser) bool { return true }) {
		c.admit(ctx, u)
	}
}

func (c *Coordinator) RemoveWaitingUser(ctx context.Context, userID string) {
	for _, u := range c.takeWaitingUsers(func(u WaitingRoomUser) bool { return u.UserID == userID }) {
		if err := c.client.ExpelWaitingUser(ctx, u.UserID); err != nil {
			slog.Warn("failed to expel waiting user", "error", err, "user_id", u.UserID)
		}
	}
}

func (c *Coordinator) admit(ctx context.Context, u WaitingRoomUser) {
	if err := c.client.AdmitWaitingUser(ctx, u.UserID); err != nil {
		slog.Warn("failed to admit waiting user", "error", err, "user_id", u.UserID)
		return
	}
	slog.Info("admitted waiting user", "user_id", u.UserID, "display_name", u.DisplayName)
}
