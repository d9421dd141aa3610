package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"raffler/events"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	colorSuccess = 0x57F287
	colorDanger  = 0xED4245
	colorWarning = 0xFEE75C
)

// embedSender is the part of a discordgo session the announcer needs
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAnnouncer posts finished draws to a Discord channel
type DiscordAnnouncer struct {
	session   embedSender
	channelID string
	closer    func() error
}

// NewDiscordAnnouncer opens a bot session for posting draw results
func NewDiscordAnnouncer(token, channelID string) (*DiscordAnnouncer, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}
	return &DiscordAnnouncer{session: dg, channelID: channelID, closer: dg.Close}, nil
}

// Close shuts down the bot session
func (a *DiscordAnnouncer) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

// HandleDrawFinished is registered as a local handler for draw_finished events
func (a *DiscordAnnouncer) HandleDrawFinished(ctx context.Context, event events.Event) error {
	finished, ok := event.(events.DrawFinishedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, buildDrawEmbed(finished)); err != nil {
		log.WithFields(log.Fields{
			"drawId": finished.DrawID,
			"error":  err,
		}).Error("Failed to announce draw result")
		return fmt.Errorf("failed to send draw announcement: %w", err)
	}
	return nil
}

func buildDrawEmbed(e events.DrawFinishedEvent) *discordgo.MessageEmbed {
	color := colorSuccess
	title := "🎉 Raffle Draw Complete"
	unpaid := 0
	for _, w := range e.Winners {
		if w.TransferReference == "" {
			unpaid++
		}
	}
	switch {
	case e.Status == "failed":
		color = colorDanger
		title = "⚠️ Raffle Draw Failed"
	case unpaid > 0:
		color = colorWarning
		title = "🎟️ Raffle Draw Partially Paid"
	}

	var table strings.Builder
	table.WriteString("```\n")
	table.WriteString("#  Wallet        Chance   Payout\n")
	for i, w := range e.Winners {
		payout := FormatSOL(w.PayoutAmount)
		if w.TransferReference == "" {
			payout += " (unpaid)"
		}
		table.WriteString(fmt.Sprintf("%-2d %-12s  %5.2f%%  %s\n", i+1, shortWallet(w.Wallet), w.Probability*100, payout))
	}
	table.WriteString("```")

	return &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🏆 Winners", Value: table.String()},
			{Name: "💰 Claim", Value: FormatSOL(e.TotalAmount), Inline: true},
			{Name: "🎁 Pool", Value: FormatSOL(e.PayoutPool), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Draw " + e.DrawID},
		Timestamp: e.EndedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// FormatSOL renders lamports as SOL
func FormatSOL(lamports int64) string {
	return decimal.NewFromInt(lamports).Div(LamportsPerSOL).StringFixed(4) + " SOL"
}

func shortWallet(wallet string) string {
	if len(wallet) <= 12 {
		return wallet
	}
	return wallet[:4] + "…" + wallet[len(wallet)-4:]
}
