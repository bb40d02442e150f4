// Package bot maps inbound chat commands onto work-log operations. The
// dispatcher is stateless: each message either matches exactly one command in
// the registry or produces no response at all.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/timeclock-bot/timeclock/internal/worklog"
)

// Message is one inbound chat message, already stripped down to what command
// parsing needs.
type Message struct {
	AuthorID  string
	ChannelID string
	Content   string
	Mentions  []string
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Response is the structured payload a handled command produces. The gateway
// layer renders it as an embed.
type Response struct {
	Title       string
	Description string
	Fields      []Field
	Color       int
}

const (
	colorDefault = 0xff0000
	colorError   = 0x992d22
)

// NameResolver turns a user ID into a display identity. Leaderboard rows
// whose ID cannot be resolved are skipped rather than rendered raw.
type NameResolver interface {
	DisplayName(userID string) (string, bool)
}

// HistoryPurger deletes the most recent messages from a channel. Message
// history lives in the chat platform, not in the work log, so this is
// delegated to the gateway.
type HistoryPurger interface {
	PurgeMessages(channelID string, count int) error
}

type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, msg Message, args []string) *Response
}

type Bot struct {
	svc      *worklog.Service
	log      *logrus.Logger
	statsd   *statsd.Client
	admins   map[string]bool
	prefix   string
	resolver NameResolver
	purger   HistoryPurger
	now      func() time.Time

	commands []command
}

type Option func(*Bot)

func WithStatsd(statsd *statsd.Client) Option {
	return func(b *Bot) {
		b.statsd = statsd
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(b *Bot) {
		b.log = log
	}
}

// WithAdmins sets the allow-list of user IDs permitted to run clearall.
func WithAdmins(userIDs []string) Option {
	return func(b *Bot) {
		b.admins = lo.SliceToMap(userIDs, func(id string) (string, bool) { return id, true })
	}
}

func WithPrefix(prefix string) Option {
	return func(b *Bot) {
		b.prefix = prefix
	}
}

func WithResolver(resolver NameResolver) Option {
	return func(b *Bot) {
		b.resolver = resolver
	}
}

func WithPurger(purger HistoryPurger) Option {
	return func(b *Bot) {
		b.purger = purger
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		b.now = now
	}
}

func New(svc *worklog.Service, options ...Option) *Bot {
	b := Bot{
		svc:    svc,
		log:    logrus.New(),
		admins: map[string]bool{},
		prefix: "!",
		now:    time.Now,
	}
	for _, option := range options {
		option(&b)
	}
	b.commands = []command{
		{"log", "log [note]", "Log your work for the day.", b.handleLog},
		{"stats", "stats [user]", "View days worked and the last log time, for you or the given user.", b.handleStats},
		{"leaderboard", "leaderboard", "View the top 10 users by work logged.", b.handleLeaderboard},
		{"recent", "recent", "View the top 10 users by work logged in the recent window.", b.handleRecent},
		{"clear", "clear [user]", "Clear the work log for you or the given user.", b.handleClear},
		{"clearall", "clearall", "Clear the entire work log. Admins only.", b.handleClearAll},
		{"purge", "purge <count>", "Delete the last <count> messages in this channel.", b.handlePurge},
		{"help", "help", "Show this command reference.", b.handleHelp},
	}
	return &b
}

// Handle dispatches one message to at most one command and returns the
// response to render, or nil when the message is not a known command.
// Storage failures never escape: they are logged and translated into a
// generic failure response.
func (b *Bot) Handle(ctx context.Context, msg Message) *Response {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, b.prefix) {
		return nil
	}
	tokens := strings.Fields(strings.TrimPrefix(content, b.prefix))
	if len(tokens) == 0 {
		return nil
	}

	for _, cmd := range b.commands {
		if cmd.name != tokens[0] {
			continue
		}
		start := time.Now()
		resp := cmd.run(ctx, msg, tokens[1:])
		duration := time.Since(start)
		b.log.Infof("%s ran %q in %s", msg.AuthorID, cmd.name, duration.String())
		if b.statsd != nil {
			b.statsd.Incr("timeclock.command", []string{"command:" + cmd.name}, 1.0)
			b.statsd.Distribution("timeclock.command_duration", float64(duration.Microseconds())/1_000, []string{"command:" + cmd.name}, 1.0)
		}
		return resp
	}

	// Unrecognized commands are not an error, they just aren't ours
	return nil
}

func (b *Bot) storageFailure(err error) *Response {
	b.log.Errorf("work log unavailable: %v", err)
	return &Response{
		Title:       "Something Went Wrong",
		Description: "The work log is unavailable right now. Please try again later.",
		Color:       colorError,
	}
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

// targetUser picks the user a stats/clear command applies to: the first
// argument when present (raw ID or mention), otherwise the author. The target
// is never validated against live guild membership, so commands can reference
// a user who has since left.
func targetUser(msg Message, args []string) string {
	if len(args) == 0 {
		return msg.AuthorID
	}
	target := strings.TrimSuffix(strings.TrimPrefix(args[0], "<@"), ">")
	target = strings.TrimPrefix(target, "!")
	return target
}
