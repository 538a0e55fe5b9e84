package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/foxseedlab/huddle/internal/session"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("invalid arguments")
	// ErrLeft is returned by Dispatch after /leave or /end.
	ErrLeft = errors.New("left session")
)

// Controller is the set of session operations reachable from the console.
type Controller interface {
	ToggleMute(ctx context.Context)
	ToggleVideo(ctx context.Context)
	SendChatMessage(ctx context.Context, text string)
	SendPrivateChatMessage(ctx context.Context, toUserID, text string)
	SendChatReaction(ctx context.Context, messageID, emoji string)
	SendReaction(ctx context.Context, emoji string)
	ToggleRemoteAudio(ctx context.Context, userID string)
	ToggleRemoteVideo(ctx context.Context, userID string)
	SendUnmuteRequest(ctx context.Context)
	ApproveUnmuteRequest(ctx context.Context)
	DismissUnmuteRequest()
	StartTranscription(ctx context.Context, language string)
	StopTranscription(ctx context.Context)
	SetTranscriptionLanguage(ctx context.Context, language string)
	AdmitWaitingUser(ctx context.Context, userID string)
	AdmitAllWaitingUsers(ctx context.Context)
	RemoveWaitingUser(ctx context.Context, userID string)
	Leave(ctx context.Context, endForAll bool)
}

type handler struct {
	minArgs int
	usage   string
	run     func(ctx context.Context, c Controller, args []string)
}

var handlers = map[string]handler{
	"mute":  {run: func(ctx context.Context, c Controller, _ []string) { c.ToggleMute(ctx) }},
	"video": {run: func(ctx context.Context, c Controller, _ []string) { c.ToggleVideo(ctx) }},
	"hand":  {run: func(ctx context.Context, c Controller, _ []string) { c.SendReaction(ctx, session.RaiseHandEmoji) }},
	"react": {minArgs: 1, usage: "/react <emoji>", run: func(ctx context.Context, c Controller, args []string) {
		c.SendReaction(ctx, args[0])
	}},
	"dm": {minArgs: 2, usage: "/dm <user_id> <text>", run: func(ctx context.Context, c Controller, args []string) {
		c.SendPrivateChatMessage(ctx, args[0], strings.Join(args[1:], " "))
	}},
	"like": {minArgs: 2, usage: "/like <message_id> <emoji>", run: func(ctx context.Context, c Controller, args []string) {
		c.SendChatReaction(ctx, args[0], args[1])
	}},
	"remote-mute": {minArgs: 1, usage: "/remote-mute <user_id>", run: func(ctx context.Context, c Controller, args []string) {
		c.ToggleRemoteAudio(ctx, args[0])
	}},
	"remote-video": {minArgs: 1, usage: "/remote-video <user_id>", run: func(ctx context.Context, c Controller, args []string) {
		c.ToggleRemoteVideo(ctx, args[0])
	}},
	"ask-unmute": {run: func(ctx context.Context, c Controller, _ []string) { c.SendUnmuteRequest(ctx) }},
	"approve":    {run: func(ctx context.Context, c Controller, _ []string) { c.ApproveUnmuteRequest(ctx) }},
	"dismiss":    {run: func(_ context.Context, c Controller, _ []string) { c.DismissUnmuteRequest() }},
	"captions": {minArgs: 1, usage: "/captions on [language] | off", run: func(ctx context.Context, c Controller, args []string) {
		if args[0] == "off" {
			c.StopTranscription(ctx)
			return
		}
		language := ""
		if len(args) > 1 {
			language = args[1]
		}
		c.StartTranscription(ctx, language)
	}},
	"language": {minArgs: 1, usage: "/language <code>", run: func(ctx context.Context, c Controller, args []string) {
		c.SetTranscriptionLanguage(ctx, args[0])
	}},
	"admit": {run: func(ctx context.Context, c Controller, args []string) {
		if len(args) == 0 {
			c.AdmitAllWaitingUsers(ctx)
			return
		}
		c.AdmitWaitingUser(ctx, args[0])
	}},
	"expel": {minArgs: 1, usage: "/expel <user_id>", run: func(ctx context.Context, c Controller, args []string) {
		c.RemoveWaitingUser(ctx, args[0])
	}},
}

type Console struct {
	controller Controller
}

func New(controller Controller) *Console {
	return &Console{controller: controller}
}

// Dispatch runs one console line. Lines without a leading slash are sent as
// public chat.
func (c *Console) Dispatch(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.controller.SendChatMessage(ctx, line)
		return nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "leave":
		c.controller.Leave(ctx, false)
		return ErrLeft
	case "end":
		c.controller.Leave(ctx, true)
		return ErrLeft
	}

	h, ok := handlers[name]
	if !ok {
		return fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	if len(args) < h.minArgs {
		return fmt.Errorf("%w: usage %s", ErrUsage, h.usage)
	}
	h.run(ctx, c.controller, args)
	return nil
}

// Run dispatches lines from r until EOF, ctx is done or the session is left.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.Dispatch(ctx, scanner.Text())
		switch {
		case errors.Is(err, ErrLeft):
			return nil
		case err != nil:
			slog.Warn("console command rejected", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console input: %w", err)
	}
	return nil
}
