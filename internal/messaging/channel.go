// Package messaging adapts a chat app on the automation surface into a
// simple send/read channel used to invite guests and collect their replies.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/normalize"
	"DealPilot/internal/surface"
)

// Channel is a one-to-one conversation transport.
type Channel interface {
	SendMessage(ctx context.Context, contact, text string) error
	// ReadLastMessage returns the latest message in the chat with contact, or
	// "" when nothing readable is there.
	ReadLastMessage(ctx context.Context, contact string) (string, error)
}

// DefaultApp is the chat app driven when none is configured.
const DefaultApp = "WhatsApp"

// SurfaceChannel drives a chat app through the automation surface.
type SurfaceChannel struct {
	surface surface.Surface
	app     string
}

// NewSurfaceChannel returns a channel over s for the given chat app.
func NewSurfaceChannel(s surface.Surface, app string) *SurfaceChannel {
	if strings.TrimSpace(app) == "" {
		app = DefaultApp
	}
	return &SurfaceChannel{surface: s, app: app}
}

// App returns the chat app name.
func (c *SurfaceChannel) App() string { return c.app }

// SendMessage opens the chat with contact and sends text.
func (c *SurfaceChannel) SendMessage(ctx context.Context, contact, text string) error {
	out, err := c.surface.RunGoal(ctx, surface.Goal{App: c.app, Text: sendGoal(c.app, contact, text)})
	if err != nil {
		return surface.Failure(c.app, err)
	}
	res := normalize.Normalize(out)
	if !res.OK() {
		return xerrors.Wrap(xerrors.CodePlatformSurface, res.Failure.Err(),
			fmt.Sprintf("message to %s not confirmed", contact), xerrors.WithMetadata("contact", contact))
	}
	if status := res.Record.Status(); status != "success" {
		return xerrors.New(xerrors.CodePlatformSurface,
			fmt.Sprintf("message to %s not sent (status %q)", contact, status),
			xerrors.WithMetadata("contact", contact))
	}
	return nil
}

// ReadLastMessage opens the chat with contact and reads the newest message.
// Unparseable agent output reads as no message.
func (c *SurfaceChannel) ReadLastMessage(ctx context.Context, contact string) (string, error) {
	out, err := c.surface.RunGoal(ctx, surface.Goal{App: c.app, Text: readGoal(c.app, contact)})
	if err != nil {
		return "", surface.Failure(c.app, err)
	}
	res := normalize.Normalize(out)
	if !res.OK() {
		return "", nil
	}
	return messageText(res.Record), nil
}

func messageText(rec normalize.Record) string {
	if fromMe, ok := rec.Value("from_me"); ok && fromMe == true {
		return ""
	}
	switch rec.Status() {
	case "waiting", "failed", "no_reply":
		return ""
	case "new_reply":
		// Older agents report extracted items instead of the raw text.
		if _, ok := rec.Value("items"); ok {
			raw, err := json.Marshal(map[string]any(rec))
			if err == nil {
				return string(raw)
			}
		}
	}
	for _, key := range []string{"text", "message", "content"} {
		if text := strings.TrimSpace(rec.String(key)); text != "" {
			return text
		}
	}
	return ""
}

func sendGoal(app, contact, text string) string {
	return fmt.Sprintf("Open '%s'. Navigate to the main chat list (press Back if a chat is open). "+
		"Search for the contact '%s' and open the chat. "+
		"Type the message '%s' in the text box and press Send. Do NOT read previous messages. "+
		"Return a strict JSON object: {'status': 'success'} or {'status': 'failed'}.",
		app, contact, text)
}

func readGoal(app, contact string) string {
	return fmt.Sprintf("Open '%s'. Navigate to the main chat list (press Back if a chat is open). "+
		"Search for the contact '%s' and open the chat. Read the LAST message only. "+
		"Return a strict JSON object: {'sender': <name shown>, 'from_me': <true if sent by us>, 'text': <message text>}.",
		app, contact)
}
