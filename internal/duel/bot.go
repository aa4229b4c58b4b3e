package duel

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/questionbank"
	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// NewBotPlayer creates the synthetic opponent used in practice duels.
func NewBotPlayer() Player {
	return Player{
		ID:     uuid.New(),
		Name:   "CodeBot",
		Avatar: "bot",
		IsBot:  true,
	}
}

// Bot plays one seat of a practice duel. It consumes the same outbound event
// stream a human client would, so the session cannot tell it apart from a
// real player: it acknowledges session_created and answers questions after a
// humanlike delay with a configurable accuracy.
type Bot struct {
	player    Player
	session   *Session
	questions []questionbank.Question
	accuracy  float64
	logger    zerolog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
	timers   []*time.Timer
	stopped  bool
}

// NewBot creates a bot bound to its seat. Bind must be called with the
// session before events are delivered.
func NewBot(player Player, questions []questionbank.Question, accuracy float64, logger zerolog.Logger) *Bot {
	return &Bot{
		player:    player,
		questions: questions,
		accuracy:  accuracy,
		logger:    logger.With().Str("component", "bot").Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		minDelay:  2 * time.Second,
		maxDelay:  6 * time.Second,
	}
}

// Bind attaches the bot to its session.
func (b *Bot) Bind(s *Session) {
	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
}

// SetDelayRange overrides the answer delay window. Tests use this to keep
// bot duels fast.
func (b *Bot) SetDelayRange(min, max time.Duration) {
	b.mu.Lock()
	b.minDelay, b.maxDelay = min, max
	b.mu.Unlock()
}

// Stop cancels any pending answers.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
}

// Deliver implements Sink.
func (b *Bot) Deliver(msg ws.Message) {
	switch msg.Name {
	case ws.NameSessionCreated:
		b.mu.Lock()
		s := b.session
		b.mu.Unlock()
		if s != nil {
			s.Ready(b.player.ID)
		}
	case ws.NameQuestion:
		var payload ws.QuestionPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			b.logger.Warn().Err(err).Msg("bad question payload")
			return
		}
		b.scheduleAnswer(payload)
	case ws.NameSessionFinished:
		b.Stop()
	}
}

func (b *Bot) scheduleAnswer(payload ws.QuestionPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.session == nil {
		return
	}

	delay := b.minDelay
	if b.maxDelay > b.minDelay {
		delay += time.Duration(b.rng.Int63n(int64(b.maxDelay - b.minDelay)))
	}
	option := b.pickOption(payload.Index, len(payload.Options))

	s := b.session
	index := payload.Index
	t := time.AfterFunc(delay, func() {
		b.mu.Lock()
		stopped := b.stopped
		b.mu.Unlock()
		if stopped {
			return
		}
		b.logger.Debug().Int("question", index).Int("option", option).Msg("bot answering")
		s.SubmitAnswer(b.player.ID, option)
	})
	b.timers = append(b.timers, t)
}

// pickOption answers correctly with probability accuracy, otherwise picks a
// uniformly random wrong option.
func (b *Bot) pickOption(index, optionCount int) int {
	if index < 0 || index >= len(b.questions) || optionCount <= 0 {
		return 0
	}
	correct := b.questions[index].Correct

	if b.rng.Float64() < b.accuracy || optionCount == 1 {
		return correct
	}

	wrong := b.rng.Intn(optionCount - 1)
	if wrong >= correct {
		wrong++
	}
	return wrong
}
