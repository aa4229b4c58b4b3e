package duel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/questionbank"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/xp"
	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// Inbound session events. All mutations of a session travel through this
// tagged union so the loop processes one event at a time, in arrival order.
type event interface {
	sessionEvent()
}

type evAttach struct {
	playerID uuid.UUID
	sink     Sink
}

type evDetach struct {
	playerID uuid.UUID
}

type evReady struct {
	playerID uuid.UUID
}

type evAnswer struct {
	playerID uuid.UUID
	option   int
	at       time.Time
}

type evLeave struct {
	playerID uuid.UUID
}

type evAbort struct{}

func (evAttach) sessionEvent() {}
func (evDetach) sessionEvent() {}
func (evReady) sessionEvent()  {}
func (evAnswer) sessionEvent() {}
func (evLeave) sessionEvent()  {}
func (evAbort) sessionEvent()  {}

// participant tracks one seat of the duel. Only the session loop touches it.
type participant struct {
	player    Player
	score     int
	streak    int
	answered  bool
	connected bool
	ready     bool
	grace     alarm
}

// Session owns one duel from pairing to finish. It is an actor: answer
// events, timer firings, and disconnect notices are funnelled through one
// inbox, so score updates never race. Different sessions run fully in
// parallel and share no mutable state.
type Session struct {
	ID   uuid.UUID
	Mode string

	cfg       Config
	questions []questionbank.Question
	seats     [2]*participant
	disp      dispatcher
	awarder   xp.Awarder
	logger    zerolog.Logger

	inbox     chan event
	done      chan struct{}
	closeOnce sync.Once

	// Loop-owned round state.
	current      int
	deadline     time.Time
	state        alarm
	stateKind    timerKind
	firstCorrect int
	lastResult   ws.Message

	// Snapshot fields readable outside the loop.
	mu         sync.RWMutex
	status     string
	winnerID   string
	reason     string
	createdAt  time.Time
	finishedAt time.Time
}

// NewSession creates a session in the matchmaking state. It does not run
// until Start is called.
func NewSession(id uuid.UUID, mode string, players [2]Player, questions []questionbank.Question, awarder xp.Awarder, cfg Config, logger zerolog.Logger) *Session {
	s := &Session{
		ID:           id,
		Mode:         mode,
		cfg:          cfg.withDefaults(),
		questions:    questions,
		awarder:      awarder,
		logger:       logger.With().Str("component", "session").Str("session_id", id.String()).Logger(),
		inbox:        make(chan event, 32),
		done:         make(chan struct{}),
		firstCorrect: -1,
		status:       StatusMatchmaking,
		createdAt:    time.Now(),
	}
	for i, p := range players {
		s.seats[i] = &participant{player: p}
	}
	return s
}

// Start launches the session loop.
func (s *Session) Start() {
	go s.run()
}

// Close terminates the loop. Called by the registry on eviction.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Attach binds a player's outbound sink and marks them connected. A
// reconnect during active play resumes the session unchanged and resends
// the current snapshot.
func (s *Session) Attach(playerID uuid.UUID, sink Sink) {
	s.post(evAttach{playerID: playerID, sink: sink})
}

// Detach marks a player disconnected and arms the forfeit grace timer.
func (s *Session) Detach(playerID uuid.UUID) {
	s.post(evDetach{playerID: playerID})
}

// Ready records a player's acknowledgement of session_created.
func (s *Session) Ready(playerID uuid.UUID) {
	s.post(evReady{playerID: playerID})
}

// SubmitAnswer routes an answer into the session. The arrival timestamp is
// captured here so a deadline firing already queued ahead of the answer
// still wins.
func (s *Session) SubmitAnswer(playerID uuid.UUID, option int) {
	s.post(evAnswer{playerID: playerID, option: option, at: time.Now()})
}

// Leave is an explicit forfeit.
func (s *Session) Leave(playerID uuid.UUID) {
	s.post(evLeave{playerID: playerID})
}

// Abort ends a session that never got going (registry sweep of stale
// pairings).
func (s *Session) Abort() {
	s.post(evAbort{})
}

func (s *Session) post(e event) {
	select {
	case s.inbox <- e:
	case <-s.done:
	}
}

// Players returns both seat identities in order.
func (s *Session) Players() [2]Player {
	return [2]Player{s.seats[0].player, s.seats[1].player}
}

// IsParticipant reports whether the player occupies one of the two seats.
func (s *Session) IsParticipant(playerID uuid.UUID) bool {
	return s.seatOf(playerID) >= 0
}

// Status returns the current lifecycle state.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Result returns the winner sentinel and finish reason; both are empty
// until the session is finished.
func (s *Session) Result() (winnerID, reason string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.winnerID, s.reason
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// FinishedAt returns when the session reached the finished state, or zero.
func (s *Session) FinishedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishedAt
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) seatOf(playerID uuid.UUID) int {
	for i, p := range s.seats {
		if p.player.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) run() {
	for {
		select {
		case ev := <-s.inbox:
			s.dispatch(ev)
		case <-s.done:
			s.state.cancel()
			for _, p := range s.seats {
				p.grace.cancel()
			}
			return
		}
	}
}

func (s *Session) dispatch(ev event) {
	switch ev := ev.(type) {
	case evAttach:
		s.onAttach(ev)
	case evDetach:
		s.onDetach(ev)
	case evReady:
		s.onReady(ev)
	case evAnswer:
		s.onAnswer(ev)
	case evLeave:
		s.onLeave(ev)
	case evAbort:
		if s.status != StatusFinished {
			s.finish("", ReasonAbandoned)
		}
	case wakeup:
		s.onWakeup(ev)
	}
}

func (s *Session) onAttach(ev evAttach) {
	seat := s.seatOf(ev.playerID)
	if seat < 0 {
		return
	}

	p := s.seats[seat]
	p.connected = true
	p.grace.cancel()
	s.disp.setSink(seat, ev.sink)

	switch s.status {
	case StatusMatchmaking:
		if s.seats[0].connected && s.seats[1].connected {
			s.toWaiting()
		}
	case StatusWaiting:
		s.disp.sendTo(seat, s.sessionCreatedFor(seat))
	case StatusCountdown:
		s.disp.sendTo(seat, ws.NewMessage(ws.NameCountdown, ws.CountdownPayload{
			SessionID:        s.ID.String(),
			SecondsRemaining: int(s.cfg.Countdown.Seconds()),
		}))
	case StatusQuestion:
		s.disp.sendTo(seat, s.questionMessage())
		if s.seats[1-seat].answered {
			s.disp.sendTo(seat, ws.NewMessage(ws.NameOpponentAnswered, ws.OpponentAnsweredPayload{
				SessionID: s.ID.String(),
				Index:     s.current,
			}))
		}
	case StatusResult:
		s.disp.sendTo(seat, s.lastResult)
	case StatusFinished:
		s.disp.sendTo(seat, s.finishedMessage())
	}

	s.logger.Debug().Str("player_id", ev.playerID.String()).Str("status", s.status).Msg("player attached")
}

func (s *Session) onDetach(ev evDetach) {
	seat := s.seatOf(ev.playerID)
	if seat < 0 {
		return
	}

	p := s.seats[seat]
	p.connected = false

	switch s.status {
	case StatusMatchmaking, StatusFinished:
		return
	}

	idx := seat
	p.grace.schedule(s.cfg.DisconnectGrace, func(gen uint64) {
		s.post(wakeup{kind: timerGrace, gen: gen, seat: idx})
	})

	s.logger.Info().
		Str("player_id", ev.playerID.String()).
		Dur("grace", s.cfg.DisconnectGrace).
		Msg("player disconnected, forfeit grace armed")
}

func (s *Session) onReady(ev evReady) {
	if s.status != StatusWaiting {
		return
	}
	seat := s.seatOf(ev.playerID)
	if seat < 0 {
		return
	}

	s.seats[seat].ready = true
	if s.seats[0].ready && s.seats[1].ready {
		s.enterCountdown()
	}
}

// onAnswer implements the per-question resolution rules: an answer counts
// only while the question is open, once per player, and on or before the
// deadline. Late and duplicate answers get a negative ack and nothing else.
func (s *Session) onAnswer(ev evAnswer) {
	seat := s.seatOf(ev.playerID)
	if seat < 0 {
		return
	}

	if s.status != StatusQuestion {
		s.disp.sendTo(seat, errorMessage(ErrInvalidStateForAction))
		return
	}

	p := s.seats[seat]
	if p.answered || ev.at.After(s.deadline) {
		dropped := s.logger.Debug().Str("player_id", ev.playerID.String()).Int("question", s.current)
		if p.answered {
			dropped = dropped.Err(ErrAlreadyAnswered)
		}
		dropped.Msg("answer dropped")

		s.disp.sendTo(seat, ws.NewMessage(ws.NameAnswerAck, ws.AnswerAckPayload{
			SessionID: s.ID.String(),
			Index:     s.current,
			Accepted:  false,
		}))
		return
	}

	q := s.questions[s.current]
	correct := ev.option == q.Correct

	p.answered = true
	if correct {
		p.score += s.cfg.PointsPerCorrect
		p.streak++
		if s.firstCorrect < 0 {
			s.firstCorrect = seat
		}
	} else {
		p.streak = 0
	}

	metricAnswersAccepted.Inc()

	s.disp.sendTo(seat, ws.NewMessage(ws.NameAnswerAck, ws.AnswerAckPayload{
		SessionID: s.ID.String(),
		Index:     s.current,
		Accepted:  true,
	}))
	s.disp.sendTo(1-seat, ws.NewMessage(ws.NameOpponentAnswered, ws.OpponentAnsweredPayload{
		SessionID: s.ID.String(),
		Index:     s.current,
	}))

	if s.seats[0].answered && s.seats[1].answered {
		s.resolveRound()
	}
}

func (s *Session) onLeave(ev evLeave) {
	seat := s.seatOf(ev.playerID)
	if seat < 0 || s.status == StatusFinished {
		return
	}

	s.logger.Info().Str("player_id", ev.playerID.String()).Msg("player left, forfeiting")
	s.finish(s.seats[1-seat].player.ID.String(), ReasonForfeit)
}

func (s *Session) onWakeup(ev wakeup) {
	if ev.kind == timerGrace {
		s.onGraceExpired(ev)
		return
	}

	if !s.state.matches(ev.gen) || ev.kind != s.stateKind {
		return
	}

	switch ev.kind {
	case timerWaiting:
		if s.status == StatusWaiting {
			s.enterCountdown()
		}
	case timerCountdown:
		if s.status == StatusCountdown {
			s.enterQuestion(0)
		}
	case timerDeadline:
		if s.status == StatusQuestion {
			s.resolveRound()
		}
	case timerReveal:
		if s.status != StatusResult {
			return
		}
		if s.current >= len(s.questions)-1 {
			s.finish("", ReasonCompleted)
		} else {
			s.enterQuestion(s.current + 1)
		}
	}
}

func (s *Session) onGraceExpired(ev wakeup) {
	p := s.seats[ev.seat]
	if !p.grace.matches(ev.gen) || s.status == StatusFinished {
		return
	}
	p.grace.cancel()

	other := s.seats[1-ev.seat]
	if other.connected || other.player.IsBot {
		s.finish(other.player.ID.String(), ReasonForfeit)
	} else {
		s.finish("", ReasonAbandoned)
	}
}

func (s *Session) toWaiting() {
	s.setStatus(StatusWaiting)
	for seat := range s.seats {
		s.disp.sendTo(seat, s.sessionCreatedFor(seat))
	}
	s.stateKind = timerWaiting
	s.state.schedule(s.cfg.WaitingTimeout, func(gen uint64) {
		s.post(wakeup{kind: timerWaiting, gen: gen})
	})
}

func (s *Session) enterCountdown() {
	s.setStatus(StatusCountdown)
	s.disp.broadcast(ws.NewMessage(ws.NameCountdown, ws.CountdownPayload{
		SessionID:        s.ID.String(),
		SecondsRemaining: int(s.cfg.Countdown.Seconds()),
	}))
	s.stateKind = timerCountdown
	s.state.schedule(s.cfg.Countdown, func(gen uint64) {
		s.post(wakeup{kind: timerCountdown, gen: gen})
	})
}

func (s *Session) enterQuestion(index int) {
	q := s.questions[index]
	s.current = index
	s.deadline = time.Now().Add(q.TimeLimit)
	s.firstCorrect = -1
	for _, p := range s.seats {
		p.answered = false
	}

	s.setStatus(StatusQuestion)
	s.disp.broadcast(s.questionMessage())

	s.stateKind = timerDeadline
	s.state.schedule(q.TimeLimit, func(gen uint64) {
		s.post(wakeup{kind: timerDeadline, gen: gen})
	})
}

// resolveRound closes the current question, either because both players
// answered or because the deadline fired. The pending deadline timer is
// cancelled outright so an in-flight firing cannot double-advance.
func (s *Session) resolveRound() {
	s.state.cancel()
	s.setStatus(StatusResult)

	q := s.questions[s.current]
	payload := ws.RoundResultPayload{
		SessionID:    s.ID.String(),
		Index:        s.current,
		CorrectIndex: q.Correct,
		Scores:       s.scores(),
		Streaks:      s.streaks(),
	}
	if s.firstCorrect >= 0 {
		payload.FirstCorrectID = s.seats[s.firstCorrect].player.ID.String()
	}
	s.lastResult = ws.NewMessage(ws.NameRoundResult, payload)
	s.disp.broadcast(s.lastResult)

	s.stateKind = timerReveal
	s.state.schedule(s.cfg.RevealDelay, func(gen uint64) {
		s.post(wakeup{kind: timerReveal, gen: gen})
	})
}

// finish moves the session to its terminal state exactly once, broadcasts
// the final snapshot, and forwards scores to the XP collaborator.
func (s *Session) finish(winnerID, reason string) {
	s.state.cancel()
	for _, p := range s.seats {
		p.grace.cancel()
	}

	if reason == ReasonCompleted {
		switch {
		case s.seats[0].score > s.seats[1].score:
			winnerID = s.seats[0].player.ID.String()
		case s.seats[1].score > s.seats[0].score:
			winnerID = s.seats[1].player.ID.String()
		default:
			winnerID = WinnerDraw
		}
	}

	s.mu.Lock()
	s.status = StatusFinished
	s.winnerID = winnerID
	s.reason = reason
	s.finishedAt = time.Now()
	s.mu.Unlock()

	s.disp.broadcast(s.finishedMessage())
	s.awardXP(winnerID)

	metricSessionsFinished.WithLabelValues(reason).Inc()

	s.logger.Info().
		Str("winner", winnerID).
		Str("reason", reason).
		Int("score_0", s.seats[0].score).
		Int("score_1", s.seats[1].score).
		Msg("session finished")
}

func (s *Session) awardXP(winnerID string) {
	if s.awarder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for _, p := range s.seats {
		if p.player.IsBot {
			continue
		}
		amount := p.score / 10
		if p.player.ID.String() == winnerID {
			amount += 50
		}
		if err := s.awarder.Award(ctx, p.player.ID, amount); err != nil {
			s.logger.Warn().Err(err).Str("player_id", p.player.ID.String()).Msg("xp award failed")
		}
	}
}

func (s *Session) sessionCreatedFor(seat int) ws.Message {
	return ws.NewMessage(ws.NameSessionCreated, ws.SessionCreatedPayload{
		SessionID:     s.ID.String(),
		Opponent:      s.seats[1-seat].player.Info(),
		QuestionCount: len(s.questions),
	})
}

func (s *Session) questionMessage() ws.Message {
	q := s.questions[s.current]
	return ws.NewMessage(ws.NameQuestion, ws.QuestionPayload{
		SessionID:        s.ID.String(),
		Index:            s.current,
		Total:            len(s.questions),
		Text:             q.Prompt,
		Code:             q.Code,
		Options:          q.Options,
		DeadlineUnixMs:   s.deadline.UnixMilli(),
		TimeLimitSeconds: int(q.TimeLimit.Seconds()),
	})
}

func (s *Session) finishedMessage() ws.Message {
	s.mu.RLock()
	winner, reason := s.winnerID, s.reason
	s.mu.RUnlock()

	return ws.NewMessage(ws.NameSessionFinished, ws.SessionFinishedPayload{
		SessionID:   s.ID.String(),
		WinnerID:    winner,
		FinalScores: s.scores(),
		Reason:      reason,
	})
}

func (s *Session) scores() map[string]int {
	return map[string]int{
		s.seats[0].player.ID.String(): s.seats[0].score,
		s.seats[1].player.ID.String(): s.seats[1].score,
	}
}

func (s *Session) streaks() map[string]int {
	return map[string]int{
		s.seats[0].player.ID.String(): s.seats[0].streak,
		s.seats[1].player.ID.String(): s.seats[1].streak,
	}
}

func errorMessage(err *Error) ws.Message {
	return ws.NewMessage(ws.NameError, ws.ErrorPayload{
		Code:    err.Code,
		Message: err.Message,
	})
}
