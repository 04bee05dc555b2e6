package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordLimit is the maximum length of a Discord message.
const discordLimit = 2000

// Discord posts alerts to a channel with a bot token.
type Discord struct {
	send      func(channelID, content string) error
	channelID string
	close     func() error
}

// NewDiscord creates a Discord channel notifier. The session only uses the REST API, so no
// gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{
		send: func(ch, content string) error {
			_, err := s.ChannelMessageSend(ch, content)
			return err
		},
		channelID: channelID,
		close:     s.Close,
	}, nil
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := "**" + a.Title + "**"
	if a.Body != "" {
		msg += "\n" + a.Body
	}
	if a.Link != "" {
		msg += "\n<" + a.Link + ">"
	}
	if r := []rune(msg); len(r) > discordLimit {
		msg = string(r[:discordLimit-1]) + "…"
	}
	if err := d.send(d.channelID, msg); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Close releases the session.
func (d *Discord) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}
