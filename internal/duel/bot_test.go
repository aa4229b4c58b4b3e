package duel

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

func TestBotPlaysFullDuel(t *testing.T) {
	questions := testQuestions(2, time.Second)
	human := Player{ID: uuid.New(), Name: "alice"}
	botPlayer := NewBotPlayer()

	bot := NewBot(botPlayer, questions, 1.0, zerolog.Nop())
	bot.SetDelayRange(time.Millisecond, 5*time.Millisecond)
	t.Cleanup(bot.Stop)

	s := NewSession(uuid.New(), ModeBot, [2]Player{human, botPlayer}, questions, nil, fastConfig(), zerolog.Nop())
	bot.Bind(s)
	s.Start()
	t.Cleanup(s.Close)

	sink := &captureSink{}
	s.Attach(human.ID, sink)
	s.Attach(botPlayer.ID, bot)

	sink.waitFor(t, ws.NameSessionCreated)
	s.Ready(human.ID)

	// The human answers everything wrong; a perfectly accurate bot wins.
	for i := 1; i <= 2; i++ {
		sink.waitForCount(t, ws.NameQuestion, i)
		s.SubmitAnswer(human.ID, 1)
		sink.waitForCount(t, ws.NameRoundResult, i)
	}

	var finished ws.SessionFinishedPayload
	decodePayload(t, sink.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, botPlayer.ID.String(), finished.WinnerID)
	assert.Equal(t, ReasonCompleted, finished.Reason)
	assert.Equal(t, 200, finished.FinalScores[botPlayer.ID.String()])
}

func TestBotPickOptionAccuracy(t *testing.T) {
	questions := testQuestions(1, time.Second)

	always := NewBot(NewBotPlayer(), questions, 1.0, zerolog.Nop())
	for i := 0; i < 20; i++ {
		assert.Equal(t, questions[0].Correct, always.pickOption(0, len(questions[0].Options)))
	}

	never := NewBot(NewBotPlayer(), questions, 0, zerolog.Nop())
	for i := 0; i < 20; i++ {
		assert.NotEqual(t, questions[0].Correct, never.pickOption(0, len(questions[0].Options)))
	}
}

func TestBotForfeitsToHumanOnDisconnectTimeout(t *testing.T) {
	questions := testQuestions(3, time.Second)
	human := Player{ID: uuid.New(), Name: "alice"}
	botPlayer := NewBotPlayer()

	bot := NewBot(botPlayer, questions, 1.0, zerolog.Nop())
	bot.SetDelayRange(time.Millisecond, 5*time.Millisecond)
	t.Cleanup(bot.Stop)

	s := NewSession(uuid.New(), ModeBot, [2]Player{human, botPlayer}, questions, nil, fastConfig(), zerolog.Nop())
	bot.Bind(s)
	s.Start()
	t.Cleanup(s.Close)

	sink := &captureSink{}
	s.Attach(human.ID, sink)
	s.Attach(botPlayer.ID, bot)
	sink.waitFor(t, ws.NameSessionCreated)
	s.Ready(human.ID)
	sink.waitFor(t, ws.NameQuestion)

	// The human drops mid-question and never returns. The bot is always
	// "connected", so it wins by forfeit.
	s.Detach(human.ID)

	require.Eventually(t, func() bool {
		return s.Status() == StatusFinished
	}, 2*time.Second, 5*time.Millisecond)

	winner, reason := s.Result()
	assert.Equal(t, botPlayer.ID.String(), winner)
	assert.Equal(t, ReasonForfeit, reason)
}
