// Package notify delivers reminder notifications.
//
// The reminder engine only decides whether and what to announce; a Sink
// decides how it reaches the user.  Sinks compose: Multi fans out to several
// sinks, and Announcing adds a spoken or audible announcement on top of
// another sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// Sink delivers one notification.  A nil error means delivery was confirmed.
type Sink interface {
	Send(ctx context.Context, title, message string) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, title, message string) error

func (f SinkFunc) Send(ctx context.Context, title, message string) error {
	return f(ctx, title, message)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Send(ctx context.Context, title, message string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Notification", slog.String("title", title), slog.String("message", message))
	return nil
}

// Multi delivers to every sink.  It fails if any sink fails, after trying
// all of them.
type Multi []Sink

func (m Multi) Send(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Announcer plays or speaks a message.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// Announcing wraps a sink with an announcement that runs after each
// successful delivery.  Announcement failures are logged and do not fail the
// delivery.
type Announcing struct {
	Inner     Sink
	Announcer Announcer
}

func (a *Announcing) Send(ctx context.Context, title, message string) error {
	if err := a.Inner.Send(ctx, title, message); err != nil {
		return err
	}

	if err := a.Announcer.Announce(ctx, message); err != nil {
		slog.WarnContext(ctx, "Announcement failed", slog.String("title", title), slog.Any("err", err))
	}
	return nil
}

// CommandAnnouncer runs a program with the message as its last argument, for
// example espeak or a wrapper script that plays a tone.
type CommandAnnouncer struct {
	Path string
	Args []string
}

func (c *CommandAnnouncer) Announce(ctx context.Context, message string) error {
	args := append(append([]string(nil), c.Args...), message)
	out, err := exec.CommandContext(ctx, c.Path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("while running %s: %w (output %q)", c.Path, err, out)
	}
	return nil
}
