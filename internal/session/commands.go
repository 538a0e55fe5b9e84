package session

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/huddle/internal/command"
)

// HandleCommand applies a peer command received over the command channel.
// Unknown or malformed payloads are logged and dropped.
func (c *Coordinator) HandleCommand(senderID string, payload []byte) {
	cmd, err := command.Decode(payload)
	if err != nil {
		slog.Warn("dropping peer command", "error", err, "sender_id", senderID, "payload_bytes", len(payload))
		return
	}
	slog.Debug("peer command received", "type", cmd.CommandType(), "sender_id", senderID)

	ctx := context.Background()
	switch cmd := cmd.(type) {
	case command.ChatReaction:
		c.handleChatReactionCommand(cmd)
	case command.RaiseHand:
		c.handleRaiseHandCommand(senderID, cmd)
	case command.Reaction:
		c.handleReactionCommand(senderID, cmd)
	case command.UnmuteRequest:
		c.handleUnmuteRequest(senderID, cmd)
	case command.LiveCaption:
		c.handleLiveCaption(cmd)
	case command.RemoteToggleMute, command.RemoteToggleVideo, command.UnmuteApproved:
		c.handleRemoteControl(ctx, senderID, cmd)
	}
}
