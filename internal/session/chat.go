package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/foxseedlab/huddle/internal/command"
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/google/uuid"
)

func (c *Coordinator) SendChatMessage(ctx context.Context, text string) {
	c.sendChat(ctx, "", text)
}

func (c *Coordinator) SendPrivateChatMessage(ctx context.Context, toUserID, text string) {
	if toUserID == "" {
		return
	}
	c.sendChat(ctx, toUserID, text)
}

// sendChat appends an optimistic copy of the message before handing it to the
// transport. The local id rides inside the text so peers share it, and the id
// the transport assigns is recorded as an alias of it.
func (c *Coordinator) sendChat(ctx context.Context, toUserID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	id := pendingIDPrefix + uuid.NewString()
	c.mutate(func() bool {
		selfID, name := c.selfIdentityLocked()
		c.messages = appended(c.messages, ChatMessage{
			ID:         id,
			SenderID:   selfID,
			SenderName: name,
			Text:       text,
			FromMe:     true,
			Private:    toUserID != "",
			SentAt:     c.scheduler.Now(),
		})
		return true
	})

	transportID, err := c.client.SendChat(ctx, toUserID, command.EmbedMessageID(id, text))
	if err != nil {
		slog.Warn("failed to send chat message; optimistic copy kept", "error", err, "message_id", id)
		return
	}
	if transportID == "" {
		return
	}
	c.mu.Lock()
	c.aliasLocked(transportID, id)
	c.mu.Unlock()
}

func (c *Coordinator) aliasLocked(transportID, canonicalID string) {
	if transportID == "" || transportID == canonicalID {
		return
	}
	c.aliases[transportID] = canonicalID
	c.confirmed[canonicalID] = struct{}{}
}

func (c *Coordinator) messageIndexLocked(id string) int {
	for i, m := range c.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// resolveMessageIDLocked maps any known id to the canonical message id.
func (c *Coordinator) resolveMessageIDLocked(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if c.messageIndexLocked(id) >= 0 {
		return id, true
	}
	if canonical, ok := c.aliases[id]; ok {
		return canonical, true
	}
	return "", false
}

func (c *Coordinator) handleChatReceived(ev conference.ChatReceived) {
	c.mutate(func() bool {
		embeddedID, body, hasID := command.ExtractMessageID(ev.Text)
		if canonical, seen := c.aliases[ev.MessageID]; seen {
			if ev.IsSelf && !hasID {
				c.echoIDs[canonical] = ev.MessageID
			}
			return false
		}
		if hasID {
			if i := c.messageIndexLocked(embeddedID); i >= 0 {
				if ev.IsSelf || c.messages[i].SenderID == ev.SenderID {
					c.aliasLocked(ev.MessageID, embeddedID)
					return false
				}
				slog.Warn("embedded message id already used by another sender", "message_id", embeddedID, "sender_id", ev.SenderID)
				embeddedID = ""
			}
		}
		if !hasID && ev.IsSelf {
			if id, ok := c.matchPendingEchoLocked(body); ok {
				c.aliasLocked(ev.MessageID, id)
				if ev.MessageID != "" {
					c.echoIDs[id] = ev.MessageID
				}
				return false
			}
		}

		canonical := ev.MessageID
		if embeddedID != "" {
			canonical = embeddedID
		}
		if canonical == "" {
			canonical = uuid.NewString()
		} else if c.messageIndexLocked(canonical) >= 0 {
			return false
		}
		sentAt := ev.SentAt
		if sentAt.IsZero() {
			sentAt = c.scheduler.Now()
		}
		c.messages = appended(c.messages, ChatMessage{
			ID:         canonical,
			SenderID:   ev.SenderID,
			SenderName: ev.SenderName,
			Text:       body,
			FromMe:     ev.IsSelf,
			Private:    ev.Private,
			SentAt:     sentAt,
		})
		c.aliasLocked(ev.MessageID, canonical)
		c.applyParkedReactionsLocked(canonical, ev.MessageID)
		return true
	})
}

// matchPendingEchoLocked finds the oldest unconfirmed optimistic message with
// the same text, for transports that strip the embedded id.
func (c *Coordinator) matchPendingEchoLocked(text string) (string, bool) {
	for _, m := range c.messages {
		if !m.FromMe || !strings.HasPrefix(m.ID, pendingIDPrefix) || m.Text != text {
			continue
		}
		if _, done := c.confirmed[m.ID]; done {
			continue
		}
		return m.ID, true
	}
	return "", false
}

// SendChatReaction adds the local user's reaction to a message and tells peers.
func (c *Coordinator) SendChatReaction(ctx context.Context, messageID, emoji string) {
	if strings.TrimSpace(emoji) == "" {
		return
	}
	var reaction command.ChatReaction
	changed := false
	c.mutate(func() bool {
		canonical, ok := c.resolveMessageIDLocked(messageID)
		if !ok {
			return false
		}
		selfID, name := c.selfIdentityLocked()
		wireID := canonical
		if id, ok := c.echoIDs[canonical]; ok {
			wireID = id
		}
		reaction = command.ChatReaction{MessageID: wireID, Emoji: emoji, UserID: selfID, UserName: name}
		changed = c.applyChatReactionLocked(reaction)
		return changed
	})
	if !changed {
		slog.Debug("chat reaction not applied", "message_id", messageID, "emoji", emoji)
		return
	}
	c.broadcast(ctx, "", reaction)
}

// applyChatReactionLocked records the reaction, or parks it when the message
// has not arrived yet.
func (c *Coordinator) applyChatReactionLocked(r command.ChatReaction) bool {
	canonical, ok := c.resolveMessageIDLocked(r.MessageID)
	if !ok {
		c.parkReactionLocked(r)
		return false
	}
	i := c.messageIndexLocked(canonical)
	updated, changed := withReaction(c.messages[i], r.Emoji, r.UserID, r.UserName)
	if !changed {
		return false
	}
	c.messages = replaceAt(c.messages, i, updated)
	return true
}

// parkReactionLocked holds a reaction until its message arrives. Parking is
// bounded per message and overall; reactions past either limit are dropped.
func (c *Coordinator) parkReactionLocked(r command.ChatReaction) {
	parked := c.parkedReactions[r.MessageID]
	for _, p := range parked {
		if p.Emoji == r.Emoji && p.UserID == r.UserID {
			return
		}
	}
	if len(parked) >= maxParkedPerMessage || c.parkedCount >= maxParkedReactions {
		slog.Warn("dropping reaction for unknown message; parking full", "message_id", r.MessageID, "parked", c.parkedCount)
		return
	}
	c.parkedReactions[r.MessageID] = append(parked, r)
	c.parkedCount++
	slog.Debug("parked reaction for unknown message", "message_id", r.MessageID)
}

func (c *Coordinator) applyParkedReactionsLocked(ids ...string) {
	for _, id := range ids {
		parked, ok := c.parkedReactions[id]
		if !ok {
			continue
		}
		delete(c.parkedReactions, id)
		c.parkedCount -= len(parked)
		for _, r := range parked {
			c.applyChatReactionLocked(r)
		}
	}
}

func (c *Coordinator) handleChatReactionCommand(r command.ChatReaction) {
	if r.MessageID == "" || r.Emoji == "" || r.UserID == "" {
		slog.Warn("dropping incomplete chat reaction", "message_id", r.MessageID)
		return
	}
	c.mutate(func() bool {
		return c.applyChatReactionLocked(r)
	})
}
