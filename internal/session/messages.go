package session

import "time"

const (
	statusIdle         = "Idle"
	statusConnecting   = "Connecting…"
	statusJoining      = "Joining…"
	statusConnected    = "Connected"
	statusLeaving      = "Leaving…"
	statusDisconnected = "Disconnected"
	statusJoinFailed   = "Failed to join"
	statusErrorPrefix  = "Error: "

	hostNamePrefix   = "(Host) "
	pendingIDPrefix  = "pending-"
	RaiseHandEmoji   = "✋"
	unknownSpeaker   = "Unknown speaker"
	leaveReasonLocal = "left by local user"
)

const (
	unmuteSettleDelay  = 500 * time.Millisecond
	mediaRecheckDelay  = 1000 * time.Millisecond
	reactionTTL        = 3000 * time.Millisecond
	archiveSendTimeout = 15 * time.Second
)

const (
	maxParkedPerMessage = 64
	maxParkedReactions  = 1024
)

func statusForError(message string) string {
	if message == "" {
		message = "unknown error"
	}
	return statusErrorPrefix + message
}
