package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/timeclock-bot/timeclock/internal/database"
	"github.com/timeclock-bot/timeclock/internal/worklog"
)

const logTimeFormat = "2006-01-02 15:04:05"

func (b *Bot) handleLog(ctx context.Context, msg Message, args []string) *Response {
	entry, days, err := b.svc.Record(ctx, msg.AuthorID, b.now(), strings.Join(args, " "))
	if errors.Is(err, worklog.ErrAlreadyLogged) {
		return &Response{
			Title:       "Already Logged",
			Description: mention(msg.AuthorID) + " has already logged work for today.",
			Color:       colorDefault,
		}
	}
	if err != nil {
		return b.storageFailure(err)
	}

	resp := &Response{
		Title:       "Work Logged",
		Description: mention(msg.AuthorID) + " has logged work for today.",
		Fields: []Field{
			{Name: "Log Time", Value: entry.LoggedAt.In(b.svc.Location()).Format(logTimeFormat), Inline: true},
			{Name: "Days Worked", Value: fmt.Sprintf("%d Days", days), Inline: true},
		},
		Color: colorDefault,
	}
	if entry.Description != "" {
		resp.Fields = append(resp.Fields, Field{Name: "Note", Value: entry.Description})
	}
	return resp
}

func (b *Bot) handleStats(ctx context.Context, msg Message, args []string) *Response {
	target := targetUser(msg, args)

	has, err := b.svc.HasLogged(ctx, target)
	if err != nil {
		return b.storageFailure(err)
	}
	if !has {
		return &Response{
			Title:       "Work Stats",
			Description: mention(target) + " has not logged any work.",
			Color:       colorDefault,
		}
	}

	days, err := b.svc.DaysWorked(ctx, target)
	if err != nil {
		return b.storageFailure(err)
	}
	last, err := b.svc.LastLog(ctx, target)
	if err != nil {
		return b.storageFailure(err)
	}

	return &Response{
		Title:       "Work Stats",
		Description: "Stats for " + mention(target),
		Fields: []Field{
			{Name: "Days Worked", Value: fmt.Sprintf("%d Days", days)},
			{Name: "Last Log", Value: last.LoggedAt.In(b.svc.Location()).Format(logTimeFormat)},
		},
		Color: colorDefault,
	}
}

func (b *Bot) handleLeaderboard(ctx context.Context, msg Message, args []string) *Response {
	board, err := b.svc.Leaderboard(ctx, worklog.DefaultTopN)
	if err != nil {
		return b.storageFailure(err)
	}
	return b.leaderboardResponse("Leaderboard", "Top 10 Users by Work Logged", board)
}

func (b *Bot) handleRecent(ctx context.Context, msg Message, args []string) *Response {
	board, err := b.svc.RecentLeaderboard(ctx, worklog.DefaultTopN, b.now())
	if err != nil {
		return b.storageFailure(err)
	}
	return b.leaderboardResponse("Recent Leaderboard", "Top 10 Users by Work Logged Recently", board)
}

// leaderboardResponse renders ranked rows, skipping users the resolver can't
// name (e.g. accounts that left the guild), so fewer than topN rows may show.
func (b *Bot) leaderboardResponse(title, description string, board []database.WorkLogCount) *Response {
	resp := &Response{
		Title:       title,
		Description: description,
		Color:       colorDefault,
	}
	for _, row := range board {
		name := row.UserID
		if b.resolver != nil {
			resolved, ok := b.resolver.DisplayName(row.UserID)
			if !ok {
				continue
			}
			name = resolved
		}
		resp.Fields = append(resp.Fields, Field{
			Name:  fmt.Sprintf("%d. %s", len(resp.Fields)+1, name),
			Value: fmt.Sprintf("%d Days", row.Count),
		})
	}
	return resp
}

func (b *Bot) handleClear(ctx context.Context, msg Message, args []string) *Response {
	target := targetUser(msg, args)

	removed, err := b.svc.ClearUser(ctx, target)
	if err != nil {
		return b.storageFailure(err)
	}

	return &Response{
		Title:       "Work Log Cleared",
		Description: "Cleared the work log for " + mention(target) + ".",
		Fields: []Field{
			{Name: "Entries Removed", Value: strconv.FormatInt(removed, 10)},
		},
		Color: colorDefault,
	}
}

func (b *Bot) handleClearAll(ctx context.Context, msg Message, args []string) *Response {
	if !b.admins[msg.AuthorID] {
		return &Response{
			Title:       "Permission Denied",
			Description: mention(msg.AuthorID) + " is not allowed to clear the entire work log.",
			Color:       colorError,
		}
	}

	removed, err := b.svc.ClearAll(ctx)
	if err != nil {
		return b.storageFailure(err)
	}

	return &Response{
		Title:       "Work Log Cleared",
		Description: "Cleared the entire work log.",
		Fields: []Field{
			{Name: "Entries Removed", Value: strconv.FormatInt(removed, 10)},
		},
		Color: colorDefault,
	}
}

func (b *Bot) handlePurge(ctx context.Context, msg Message, args []string) *Response {
	usage := &Response{
		Title:       "Invalid Argument",
		Description: "Usage: " + b.prefix + "purge <count>",
		Color:       colorError,
	}
	if len(args) == 0 {
		return usage
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		return usage
	}
	if b.purger == nil {
		return b.storageFailure(fmt.Errorf("no history purger configured"))
	}
	if err := b.purger.PurgeMessages(msg.ChannelID, count); err != nil {
		b.log.Errorf("failed to purge %d messages from %s: %v", count, msg.ChannelID, err)
		return &Response{
			Title:       "Purge Failed",
			Description: "Could not delete messages in this channel.",
			Color:       colorError,
		}
	}

	return &Response{
		Title:       "Purged",
		Description: fmt.Sprintf("Deleted the last %d messages.", count),
		Color:       colorDefault,
	}
}

func (b *Bot) handleHelp(ctx context.Context, msg Message, args []string) *Response {
	return &Response{
		Title:       "Timeclock Help",
		Description: "Commands for the Timeclock Bot",
		Fields: lo.Map(b.commands, func(cmd command, _ int) Field {
			return Field{Name: b.prefix + cmd.usage, Value: cmd.help}
		}),
		Color: colorDefault,
	}
}
