package console

import (
	"log/slog"
	"sync"

	"github.com/foxseedlab/huddle/internal/session"
)

// Notifier logs what changed for the local user, with the ids the console
// commands take: new chat messages, waiting-room arrivals and unmute requests.
type Notifier struct {
	logger *slog.Logger

	mu       sync.Mutex
	version  uint64
	messages map[string]struct{}
	waiting  map[string]struct{}
	unmute   session.UnmuteRequest
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:   logger,
		messages: make(map[string]struct{}),
		waiting:  make(map[string]struct{}),
	}
}

// OnState is a session.Coordinator subscriber.
func (n *Notifier) OnState(s session.State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s.Version <= n.version {
		return
	}
	n.version = s.Version

	for _, m := range s.Messages {
		if _, seen := n.messages[m.ID]; seen {
			continue
		}
		n.messages[m.ID] = struct{}{}
		if m.FromMe {
			n.logger.Info("chat message sent", "message_id", m.ID, "private", m.Private)
			continue
		}
		n.logger.Info("chat message",
			"message_id", m.ID,
			"sender_id", m.SenderID,
			"sender_name", m.SenderName,
			"private", m.Private,
			"text", m.Text)
	}

	waiting := make(map[string]struct{}, len(s.WaitingRoom))
	for _, u := range s.WaitingRoom {
		waiting[u.UserID] = struct{}{}
		if _, seen := n.waiting[u.UserID]; !seen {
			n.logger.Info("user waiting to be admitted", "user_id", u.UserID, "display_name", u.DisplayName)
		}
	}
	n.waiting = waiting

	req := s.UnmuteRequest
	if req.State == session.UnmuteRequestPending && (n.unmute.State != session.UnmuteRequestPending || n.unmute.UserID != req.UserID) {
		n.logger.Info("unmute requested", "user_id", req.UserID, "user_name", req.UserName)
	}
	n.unmute = req
}
