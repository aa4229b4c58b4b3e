package duel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/questionbank"
	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// captureSink records everything a seat would receive over the wire.
type captureSink struct {
	mu   sync.Mutex
	msgs []ws.Message
}

func (s *captureSink) Deliver(msg ws.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *captureSink) waitFor(t *testing.T, name string) ws.Message {
	t.Helper()
	msgs := s.waitForCount(t, name, 1)
	return msgs[0]
}

func (s *captureSink) waitForCount(t *testing.T, name string, n int) []ws.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		var found []ws.Message
		for _, m := range s.msgs {
			if m.Name == name {
				found = append(found, m)
			}
		}
		s.mu.Unlock()
		if len(found) >= n {
			return found[:n]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events", n, name)
	return nil
}

func (s *captureSink) countOf(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Name == name {
			n++
		}
	}
	return n
}

// recordAwarder captures XP awards for assertions.
type recordAwarder struct {
	mu     sync.Mutex
	awards map[uuid.UUID]int
}

func newRecordAwarder() *recordAwarder {
	return &recordAwarder{awards: make(map[uuid.UUID]int)}
}

func (a *recordAwarder) Award(_ context.Context, playerID uuid.UUID, amount int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.awards[playerID] += amount
	return nil
}

func (a *recordAwarder) amountFor(playerID uuid.UUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.awards[playerID]
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Countdown = 20 * time.Millisecond
	cfg.RevealDelay = 20 * time.Millisecond
	cfg.WaitingTimeout = 60 * time.Millisecond
	cfg.DisconnectGrace = 50 * time.Millisecond
	return cfg
}

func testQuestions(n int, limit time.Duration) []questionbank.Question {
	out := make([]questionbank.Question, n)
	for i := range out {
		out[i] = questionbank.Question{
			ID:        fmt.Sprintf("q-%d", i),
			Prompt:    fmt.Sprintf("question %d", i),
			Options:   []string{"right", "wrong a", "wrong b", "wrong c"},
			Correct:   0,
			TimeLimit: limit,
		}
	}
	return out
}

func testPlayers() [2]Player {
	return [2]Player{
		{ID: uuid.New(), Name: "alice"},
		{ID: uuid.New(), Name: "bob"},
	}
}

// startedSession creates a session, attaches capture sinks for both seats,
// and plays through ready so the first question is live.
func startedSession(t *testing.T, questions []questionbank.Question, cfg Config) (*Session, [2]Player, *captureSink, *captureSink) {
	t.Helper()

	players := testPlayers()
	s := NewSession(uuid.New(), ModeQuick, players, questions, nil, cfg, zerolog.Nop())
	s.Start()
	t.Cleanup(s.Close)

	a, b := &captureSink{}, &captureSink{}
	s.Attach(players[0].ID, a)
	s.Attach(players[1].ID, b)

	a.waitFor(t, ws.NameSessionCreated)
	b.waitFor(t, ws.NameSessionCreated)
	s.Ready(players[0].ID)
	s.Ready(players[1].ID)

	a.waitFor(t, ws.NameCountdown)
	a.waitFor(t, ws.NameQuestion)
	b.waitFor(t, ws.NameQuestion)
	return s, players, a, b
}

func decodePayload(t *testing.T, msg ws.Message, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Payload, v))
}

func TestSessionFullDuel(t *testing.T) {
	questions := testQuestions(2, time.Second)
	s, players, a, b := startedSession(t, questions, fastConfig())

	// Round 0: both correct, alice first.
	s.SubmitAnswer(players[0].ID, 0)
	a.waitFor(t, ws.NameAnswerAck)
	b.waitFor(t, ws.NameOpponentAnswered)
	s.SubmitAnswer(players[1].ID, 0)

	var round ws.RoundResultPayload
	decodePayload(t, a.waitFor(t, ws.NameRoundResult), &round)
	assert.Equal(t, 0, round.Index)
	assert.Equal(t, 0, round.CorrectIndex)
	assert.Equal(t, 100, round.Scores[players[0].ID.String()])
	assert.Equal(t, 100, round.Scores[players[1].ID.String()])
	assert.Equal(t, 1, round.Streaks[players[0].ID.String()])
	assert.Equal(t, players[0].ID.String(), round.FirstCorrectID)

	// Round 1: alice correct, bob wrong.
	a.waitForCount(t, ws.NameQuestion, 2)
	b.waitForCount(t, ws.NameQuestion, 2)
	s.SubmitAnswer(players[0].ID, 0)
	s.SubmitAnswer(players[1].ID, 2)

	decodePayload(t, a.waitForCount(t, ws.NameRoundResult, 2)[1], &round)
	assert.Equal(t, 200, round.Scores[players[0].ID.String()])
	assert.Equal(t, 100, round.Scores[players[1].ID.String()])
	assert.Equal(t, 2, round.Streaks[players[0].ID.String()])
	assert.Equal(t, 0, round.Streaks[players[1].ID.String()])

	var finished ws.SessionFinishedPayload
	decodePayload(t, a.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, players[0].ID.String(), finished.WinnerID)
	assert.Equal(t, ReasonCompleted, finished.Reason)
	assert.Equal(t, 200, finished.FinalScores[players[0].ID.String()])
	assert.Equal(t, 100, finished.FinalScores[players[1].ID.String()])

	b.waitFor(t, ws.NameSessionFinished)
	assert.Equal(t, StatusFinished, s.Status())
	winner, reason := s.Result()
	assert.Equal(t, players[0].ID.String(), winner)
	assert.Equal(t, ReasonCompleted, reason)
}

func TestSessionDraw(t *testing.T) {
	questions := testQuestions(1, time.Second)
	s, players, a, _ := startedSession(t, questions, fastConfig())

	s.SubmitAnswer(players[0].ID, 0)
	s.SubmitAnswer(players[1].ID, 0)

	var finished ws.SessionFinishedPayload
	decodePayload(t, a.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, WinnerDraw, finished.WinnerID)
	assert.Equal(t, ReasonCompleted, finished.Reason)
}

func TestSessionDeadlineExpiresWithoutAnswers(t *testing.T) {
	questions := testQuestions(1, 60*time.Millisecond)
	s, players, a, _ := startedSession(t, questions, fastConfig())

	var round ws.RoundResultPayload
	decodePayload(t, a.waitFor(t, ws.NameRoundResult), &round)
	assert.Equal(t, 0, round.Scores[players[0].ID.String()])
	assert.Equal(t, 0, round.Scores[players[1].ID.String()])
	assert.Empty(t, round.FirstCorrectID)

	var finished ws.SessionFinishedPayload
	decodePayload(t, a.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, WinnerDraw, finished.WinnerID)
	assert.Equal(t, StatusFinished, s.Status())
}

func TestSessionDuplicateAnswerRejected(t *testing.T) {
	questions := testQuestions(1, time.Second)
	s, players, a, _ := startedSession(t, questions, fastConfig())

	s.SubmitAnswer(players[0].ID, 0)
	s.SubmitAnswer(players[0].ID, 1)

	acks := a.waitForCount(t, ws.NameAnswerAck, 2)
	var first, second ws.AnswerAckPayload
	decodePayload(t, acks[0], &first)
	decodePayload(t, acks[1], &second)
	assert.True(t, first.Accepted)
	assert.False(t, second.Accepted)

	// The rejected duplicate must not have scored.
	s.SubmitAnswer(players[1].ID, 2)
	var round ws.RoundResultPayload
	decodePayload(t, a.waitFor(t, ws.NameRoundResult), &round)
	assert.Equal(t, 100, round.Scores[players[0].ID.String()])
}

func TestSessionLateAnswerNeverScores(t *testing.T) {
	questions := testQuestions(1, time.Second)
	s, players, a, b := startedSession(t, questions, fastConfig())

	s.SubmitAnswer(players[0].ID, 0)
	var ack ws.AnswerAckPayload
	decodePayload(t, a.waitFor(t, ws.NameAnswerAck), &ack)
	require.True(t, ack.Accepted)

	// An answer stamped past the deadline must not score even while the
	// question state is still open.
	s.post(evAnswer{playerID: players[1].ID, option: 0, at: time.Now().Add(time.Hour)})

	decodePayload(t, b.waitFor(t, ws.NameAnswerAck), &ack)
	assert.False(t, ack.Accepted)

	var round ws.RoundResultPayload
	decodePayload(t, a.waitFor(t, ws.NameRoundResult), &round)
	assert.Equal(t, 100, round.Scores[players[0].ID.String()])
	assert.Equal(t, 0, round.Scores[players[1].ID.String()])
	assert.Equal(t, 0, round.Streaks[players[1].ID.String()])
	assert.Equal(t, players[0].ID.String(), round.FirstCorrectID)
}

func TestSessionReconnectDuringRevealGetsRoundResult(t *testing.T) {
	cfg := fastConfig()
	cfg.RevealDelay = 300 * time.Millisecond
	questions := testQuestions(2, time.Second)
	s, players, a, _ := startedSession(t, questions, cfg)

	s.SubmitAnswer(players[0].ID, 0)
	s.SubmitAnswer(players[1].ID, 0)
	a.waitFor(t, ws.NameRoundResult)

	rejoined := &captureSink{}
	s.Attach(players[1].ID, rejoined)

	var round ws.RoundResultPayload
	decodePayload(t, rejoined.waitFor(t, ws.NameRoundResult), &round)
	assert.Equal(t, 0, round.Index)
	assert.Equal(t, 100, round.Scores[players[1].ID.String()])
}

func TestSessionAnswerOutsideQuestionState(t *testing.T) {
	players := testPlayers()
	s := NewSession(uuid.New(), ModeQuick, players, testQuestions(1, time.Second), nil, fastConfig(), zerolog.Nop())
	s.Start()
	t.Cleanup(s.Close)

	a, b := &captureSink{}, &captureSink{}
	s.Attach(players[0].ID, a)
	s.Attach(players[1].ID, b)
	a.waitFor(t, ws.NameSessionCreated)

	// Still waiting for ready, no question is open.
	s.SubmitAnswer(players[0].ID, 0)

	var errPayload ws.ErrorPayload
	decodePayload(t, a.waitFor(t, ws.NameError), &errPayload)
	assert.Equal(t, ErrInvalidStateForAction.Code, errPayload.Code)
}

func TestSessionWaitingTimeoutStartsAnyway(t *testing.T) {
	players := testPlayers()
	s := NewSession(uuid.New(), ModeQuick, players, testQuestions(1, time.Second), nil, fastConfig(), zerolog.Nop())
	s.Start()
	t.Cleanup(s.Close)

	a, b := &captureSink{}, &captureSink{}
	s.Attach(players[0].ID, a)
	s.Attach(players[1].ID, b)

	// Nobody sends ready; the waiting timeout forces the countdown.
	a.waitFor(t, ws.NameCountdown)
	b.waitFor(t, ws.NameQuestion)
}

func TestSessionForfeitAfterDisconnectGrace(t *testing.T) {
	questions := testQuestions(3, time.Second)
	s, players, a, _ := startedSession(t, questions, fastConfig())

	s.Detach(players[1].ID)

	var finished ws.SessionFinishedPayload
	decodePayload(t, a.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, players[0].ID.String(), finished.WinnerID)
	assert.Equal(t, ReasonForfeit, finished.Reason)
}

func TestSessionReconnectWithinGraceResumes(t *testing.T) {
	questions := testQuestions(1, time.Second)
	s, players, a, _ := startedSession(t, questions, fastConfig())

	s.Detach(players[1].ID)

	reconnected := &captureSink{}
	s.Attach(players[1].ID, reconnected)

	// The rejoining player gets the live question snapshot and the duel
	// continues instead of forfeiting.
	reconnected.waitFor(t, ws.NameQuestion)
	s.SubmitAnswer(players[0].ID, 0)
	s.SubmitAnswer(players[1].ID, 0)

	var finished ws.SessionFinishedPayload
	decodePayload(t, a.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, ReasonCompleted, finished.Reason)
}

func TestSessionAbandonedWhenBothGone(t *testing.T) {
	questions := testQuestions(1, time.Second)
	s, players, a, _ := startedSession(t, questions, fastConfig())

	s.Detach(players[0].ID)
	s.Detach(players[1].ID)

	require.Eventually(t, func() bool {
		return s.Status() == StatusFinished
	}, 2*time.Second, 5*time.Millisecond)

	winner, reason := s.Result()
	assert.Equal(t, "", winner)
	assert.Equal(t, ReasonAbandoned, reason)
	a.waitFor(t, ws.NameSessionFinished)
}

func TestSessionLeaveForfeitsImmediately(t *testing.T) {
	questions := testQuestions(2, time.Second)
	s, players, _, b := startedSession(t, questions, fastConfig())

	s.Leave(players[0].ID)

	var finished ws.SessionFinishedPayload
	decodePayload(t, b.waitFor(t, ws.NameSessionFinished), &finished)
	assert.Equal(t, players[1].ID.String(), finished.WinnerID)
	assert.Equal(t, ReasonForfeit, finished.Reason)
}

func TestSessionOpponentAnsweredOnlyOtherSeat(t *testing.T) {
	questions := testQuestions(1, time.Second)
	s, players, a, b := startedSession(t, questions, fastConfig())

	s.SubmitAnswer(players[0].ID, 0)
	b.waitFor(t, ws.NameOpponentAnswered)
	assert.Equal(t, 0, a.countOf(ws.NameOpponentAnswered))
}

func TestSessionAwardsXP(t *testing.T) {
	awarder := newRecordAwarder()
	players := testPlayers()
	questions := testQuestions(2, time.Second)

	s := NewSession(uuid.New(), ModeQuick, players, questions, awarder, fastConfig(), zerolog.Nop())
	s.Start()
	t.Cleanup(s.Close)

	a, b := &captureSink{}, &captureSink{}
	s.Attach(players[0].ID, a)
	s.Attach(players[1].ID, b)
	a.waitFor(t, ws.NameSessionCreated)
	s.Ready(players[0].ID)
	s.Ready(players[1].ID)

	for i := 1; i <= 2; i++ {
		a.waitForCount(t, ws.NameQuestion, i)
		s.SubmitAnswer(players[0].ID, 0)
		s.SubmitAnswer(players[1].ID, 3)
		a.waitForCount(t, ws.NameRoundResult, i)
	}

	a.waitFor(t, ws.NameSessionFinished)

	// Winner: 200 points -> 20 XP plus the 50 win bonus. Loser: 0.
	require.Eventually(t, func() bool {
		return awarder.amountFor(players[0].ID) == 70
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, awarder.amountFor(players[1].ID))
}
