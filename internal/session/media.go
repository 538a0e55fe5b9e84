package session

import (
	"context"
	"log/slog"
)

// ToggleMute mutes or unmutes the local microphone. Unmuting before the audio
// channel has ever connected starts the channel first and defers the unmute by
// the settle delay. Calls made while that unmute is pending are ignored.
func (c *Coordinator) ToggleMute(ctx context.Context) {
	c.mu.Lock()
	if c.unmutePending {
		c.mu.Unlock()
		slog.Debug("unmute already pending; ignoring toggle")
		return
	}
	c.audioIntent++
	muted, connected := c.muted, c.audioConnected
	if muted && !connected {
		c.unmutePending = true
	}
	c.mu.Unlock()

	switch {
	case !muted:
		if err := c.client.MuteSelf(ctx); err != nil {
			slog.Error("failed to mute", "error", err)
			return
		}
		c.mutate(func() bool {
			c.muted = true
			return true
		})
	case connected:
		if err := c.client.UnmuteSelf(ctx); err != nil {
			slog.Error("failed to unmute", "error", err)
			return
		}
		c.mutate(func() bool {
			c.muted = false
			return true
		})
	default:
		c.connectAudioThenUnmute(ctx)
	}
}

func (c *Coordinator) connectAudioThenUnmute(ctx context.Context) {
	if err := c.client.StartAudio(ctx); err != nil {
		slog.Error("failed to connect audio", "error", err)
		c.mutate(func() bool {
			c.unmutePending = false
			return true
		})
		return
	}
	c.mutate(func() bool {
		c.audioConnected = true
		return true
	})
	delayed := context.WithoutCancel(ctx)
	c.scheduler.AfterFunc(unmuteSettleDelay, func() {
		c.finishDelayedUnmute(delayed)
	})
}

func (c *Coordinator) finishDelayedUnmute(ctx context.Context) {
	c.mu.Lock()
	if !c.unmutePending {
		c.mu.Unlock()
		return
	}
	c.unmutePending = false
	proceed := c.joined && c.muted
	c.mu.Unlock()

	if !proceed {
		slog.Debug("delayed unmute skipped; state changed while waiting")
		c.mutate(func() bool { return true })
		return
	}
	if err := c.client.UnmuteSelf(ctx); err != nil {
		slog.Error("failed to unmute after audio connect", "error", err)
		c.mutate(func() bool { return true })
		return
	}
	c.mutate(func() bool {
		c.muted = false
		return true
	})
}

func (c *Coordinator) ToggleVideo(ctx context.Context) {
	c.mu.Lock()
	c.videoIntent++
	on := c.videoOn
	c.mu.Unlock()

	if on {
		if err := c.client.StopVideo(ctx); err != nil {
			slog.Error("failed to stop video", "error", err)
			return
		}
	} else {
		if err := c.client.StartVideo(ctx); err != nil {
			slog.Error("failed to start video", "error", err)
			return
		}
	}
	c.mutate(func() bool {
		c.videoOn = !on
		return true
	})
}

// EnsureAudioVideoOff forces the microphone muted and the camera off, then
// repeats the enforcement after a delay in case the transport finished
// initialising after the first attempt. The delayed pass leaves alone any
// medium the user has toggled in the meantime.
func (c *Coordinator) EnsureAudioVideoOff(ctx context.Context) {
	c.mu.Lock()
	audioIntent, videoIntent := c.audioIntent, c.videoIntent
	c.mu.Unlock()

	c.enforceMediaOff(ctx, true, true)

	delayed := context.WithoutCancel(ctx)
	c.scheduler.AfterFunc(mediaRecheckDelay, func() {
		c.mu.Lock()
		joined := c.joined
		audio := c.audioIntent == audioIntent && !c.unmutePending
		video := c.videoIntent == videoIntent
		c.mu.Unlock()
		if !joined {
			return
		}
		c.enforceMediaOff(delayed, audio, video)
	})
}

func (c *Coordinator) enforceMediaOff(ctx context.Context, audio, video bool) {
	if audio {
		if err := c.client.MuteSelf(ctx); err != nil {
			slog.Warn("failed to enforce mute", "error", err)
		} else {
			c.mutate(func() bool {
				changed := !c.muted
				c.muted = true
				return changed
			})
		}
	}
	if video {
		if err := c.client.StopVideo(ctx); err != nil {
			slog.Warn("failed to enforce camera off", "error", err)
		} else {
			c.mutate(func() bool {
				changed := c.videoOn
				c.videoOn = false
				return changed
			})
		}
	}
}
