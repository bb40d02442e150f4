package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Gateway is the thin binding between the Discord connection and the
// dispatcher. It converts message events into Messages, renders Responses as
// embeds, and implements NameResolver and HistoryPurger for the bot.
type Gateway struct {
	session *discordgo.Session
	bot     *Bot
	log     *logrus.Logger
}

func NewGateway(token string, b *Bot, log *logrus.Logger) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordgo.New: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	g := &Gateway{session: session, bot: b, log: log}
	b.resolver = g
	b.purger = g
	session.AddHandler(g.onMessageCreate)

	return g, nil
}

// Run opens the gateway connection and blocks until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("session.Open: %w", err)
	}
	g.log.Infof("connected to Discord as %s", g.session.State.User.Username)

	<-ctx.Done()

	if err := g.session.Close(); err != nil {
		return fmt.Errorf("session.Close: %w", err)
	}

	return nil
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Never respond to ourselves or to other bots
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}

	resp := g.bot.Handle(context.Background(), Message{
		AuthorID:  m.Author.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Mentions:  lo.Map(m.Mentions, func(u *discordgo.User, _ int) string { return u.ID }),
	})
	if resp == nil {
		return
	}

	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embedFromResponse(resp)); err != nil {
		g.log.Errorf("failed to send response to channel %s: %v", m.ChannelID, err)
	}
}

func embedFromResponse(resp *Response) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       resp.Title,
		Description: resp.Description,
		Color:       resp.Color,
		Fields: lo.Map(resp.Fields, func(f Field, _ int) *discordgo.MessageEmbedField {
			return &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline}
		}),
	}
}

func (g *Gateway) DisplayName(userID string) (string, bool) {
	user, err := g.session.User(userID)
	if err != nil || user == nil {
		return "", false
	}

	return user.Username, true
}

func (g *Gateway) PurgeMessages(channelID string, count int) error {
	messages, err := g.session.ChannelMessages(channelID, count, "", "", "")
	if err != nil {
		return fmt.Errorf("session.ChannelMessages: %w", err)
	}
	ids := lo.Map(messages, func(m *discordgo.Message, _ int) string { return m.ID })
	if len(ids) == 0 {
		return nil
	}
	if err := g.session.ChannelMessagesBulkDelete(channelID, ids); err != nil {
		return fmt.Errorf("session.ChannelMessagesBulkDelete: %w", err)
	}

	return nil
}
