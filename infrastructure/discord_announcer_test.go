package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffler/events"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmbedSender struct {
	mock.Mock
}

func (m *mockEmbedSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := m.Called(channelID, embed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discordgo.Message), args.Error(1)
}

func TestDiscordAnnouncer_HandleDrawFinished(t *testing.T) {
	t.Parallel()

	finished := events.DrawFinishedEvent{
		DrawID:      "draw-1",
		Status:      "completed",
		TotalAmount: 1_000_000_000,
		PayoutPool:  950_000_000,
		Winners: []events.WinnerSummary{
			{Wallet: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", Probability: 0.41, PayoutAmount: 316_666_666, TransferReference: "tx-1"},
			{Wallet: "wallet-b", Probability: 0.3, PayoutAmount: 316_666_666},
		},
		EndedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	t.Run("posts embed", func(t *testing.T) {
		t.Parallel()
		sender := &mockEmbedSender{}
		sender.On("ChannelMessageSendEmbed", "chan", mock.MatchedBy(func(e *discordgo.MessageEmbed) bool {
			return e.Color == colorWarning &&
				e.Fields[1].Value == "1.0000 SOL" &&
				assert.ObjectsAreEqual("Draw draw-1", e.Footer.Text)
		})).Return(&discordgo.Message{}, nil)

		announcer := &DiscordAnnouncer{session: sender, channelID: "chan"}
		require.NoError(t, announcer.HandleDrawFinished(context.Background(), finished))
		sender.AssertExpectations(t)
	})

	t.Run("send failure", func(t *testing.T) {
		t.Parallel()
		sender := &mockEmbedSender{}
		sender.On("ChannelMessageSendEmbed", "chan", mock.Anything).Return(nil, errors.New("rate limited"))

		announcer := &DiscordAnnouncer{session: sender, channelID: "chan"}
		assert.Error(t, announcer.HandleDrawFinished(context.Background(), finished))
	})

	t.Run("wrong event type", func(t *testing.T) {
		t.Parallel()
		announcer := &DiscordAnnouncer{session: &mockEmbedSender{}, channelID: "chan"}
		assert.Error(t, announcer.HandleDrawFinished(context.Background(), events.DrawPhaseEvent{}))
	})
}

func TestFormatSOL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.3167 SOL", FormatSOL(316_666_666))
	assert.Equal(t, "0.0000 SOL", FormatSOL(0))
	assert.Equal(t, "wallet-b", shortWallet("wallet-b"))
	assert.Equal(t, "7xKX…gAsU", shortWallet("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"))
}
