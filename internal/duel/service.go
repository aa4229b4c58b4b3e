package duel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/questionbank"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/xp"
	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// Service ties matchmaking, sessions, and connections together. It is the
// boundary the WebSocket handler talks to: it validates who may do what and
// forwards the rest into the owning session's event loop.
type Service struct {
	registry *Registry
	queue    *Queue
	conns    *ws.Registry
	bank     questionbank.Provider
	awarder  xp.Awarder
	cfg      Config
	logger   zerolog.Logger

	mu       sync.RWMutex
	profiles map[uuid.UUID]Player
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Registry    *Registry
	Queue       *Queue
	Connections *ws.Registry
	Questions   questionbank.Provider
	Awarder     xp.Awarder
	Config      Config
	Logger      zerolog.Logger
}

// NewService creates the duel service.
func NewService(opts ServiceOptions) *Service {
	if opts.Awarder == nil {
		opts.Awarder = xp.Nop{}
	}
	return &Service{
		registry: opts.Registry,
		queue:    opts.Queue,
		conns:    opts.Connections,
		bank:     opts.Questions,
		awarder:  opts.Awarder,
		cfg:      opts.Config.withDefaults(),
		logger:   opts.Logger.With().Str("component", "duel").Logger(),
		profiles: make(map[uuid.UUID]Player),
	}
}

// OnConnect records the player's profile and, if they have a live session,
// reattaches them to it.
func (s *Service) OnConnect(player Player) {
	s.mu.Lock()
	s.profiles[player.ID] = player
	s.mu.Unlock()

	if sess, ok := s.registry.ByPlayer(player.ID); ok && sess.Status() != StatusFinished {
		sess.Attach(player.ID, NewConnSink(s.conns, player.ID, s.logger))
		s.logger.Info().
			Str("player_id", player.ID.String()).
			Str("session_id", sess.ID.String()).
			Msg("player reattached to session")
	}
}

// OnDisconnect drops the player's queue presence and detaches them from any
// live session, which arms the forfeit grace timer.
func (s *Service) OnDisconnect(playerID uuid.UUID) {
	s.queue.Drop(playerID)

	if sess, ok := s.registry.ByPlayer(playerID); ok && sess.Status() != StatusFinished {
		sess.Detach(playerID)
	}
}

// FindMatch queues a player for a quick match or, in bot mode, starts a
// practice duel immediately. When an opponent was already waiting the duel
// starts right away and queued is false.
func (s *Service) FindMatch(ctx context.Context, playerID uuid.UUID, mode string) (queued bool, position int, err error) {
	player, ok := s.profile(playerID)
	if !ok {
		return false, 0, ErrSessionNotFound
	}
	if sess, ok := s.registry.ByPlayer(playerID); ok && sess.Status() != StatusFinished {
		return false, 0, ErrAlreadyInSession
	}

	if mode == "" {
		mode = ModeQuick
	}

	if mode == ModeBot {
		if err := s.startBotDuel(ctx, player); err != nil {
			return false, 0, err
		}
		return false, 0, nil
	}

	pair, position, err := s.queue.Enqueue(player, mode)
	if err != nil {
		return false, 0, err
	}
	if pair == nil {
		return true, position, nil
	}

	if err := s.startDuel(ctx, *pair); err != nil {
		return false, 0, err
	}
	return false, 0, nil
}

// CancelMatchmaking removes the player from the queue.
func (s *Service) CancelMatchmaking(playerID uuid.UUID) bool {
	return s.queue.Cancel(playerID)
}

// Challenge sends a direct invite to another online player.
func (s *Service) Challenge(playerID, targetID uuid.UUID) (*Invite, error) {
	from, ok := s.profile(playerID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess, ok := s.registry.ByPlayer(playerID); ok && sess.Status() != StatusFinished {
		return nil, ErrAlreadyInSession
	}
	if !s.conns.IsOnline(targetID) {
		return nil, ErrTargetOffline
	}

	inv, err := s.queue.Challenge(from, targetID)
	if err != nil {
		return nil, err
	}

	notifyErr := s.conns.Send(targetID, ws.NewMessage(ws.NameInvite, ws.InvitePayload{
		InviteID:         inv.ID.String(),
		From:             from.Info(),
		ExpiresInSeconds: int(time.Until(inv.ExpiresAt).Seconds()),
	}))
	if notifyErr != nil {
		s.logger.Warn().Err(notifyErr).Str("target", targetID.String()).Msg("invite delivery failed")
	}
	return inv, nil
}

// AcceptInvite consumes an invite and starts the duel, challenger in seat 0.
func (s *Service) AcceptInvite(ctx context.Context, playerID, inviteID uuid.UUID) error {
	accepter, ok := s.profile(playerID)
	if !ok {
		return ErrSessionNotFound
	}
	if sess, ok := s.registry.ByPlayer(playerID); ok && sess.Status() != StatusFinished {
		return ErrAlreadyInSession
	}

	pair, err := s.queue.AcceptInvite(inviteID, accepter)
	if err != nil {
		return err
	}

	challenger := pair.Players[0]
	if !s.conns.IsOnline(challenger.ID) {
		return ErrTargetOffline
	}
	if sess, ok := s.registry.ByPlayer(challenger.ID); ok && sess.Status() != StatusFinished {
		return ErrAlreadyInSession
	}

	return s.startDuel(ctx, *pair)
}

// DeclineInvite removes a pending invite and tells the challenger.
func (s *Service) DeclineInvite(playerID, inviteID uuid.UUID) error {
	inv, err := s.queue.DeclineInvite(inviteID, playerID)
	if err != nil {
		return err
	}

	decliner, _ := s.profile(playerID)
	if err := s.conns.Send(inv.From.ID, ws.NewMessage(ws.NameInviteDeclined, ws.InviteDeclinedPayload{
		InviteID: inv.ID.String(),
		By:       decliner.Info(),
	})); err != nil {
		s.logger.Debug().Err(err).Msg("decline notification dropped")
	}
	return nil
}

// Ready acknowledges session creation on behalf of the player.
func (s *Service) Ready(playerID, sessionID uuid.UUID) error {
	sess, err := s.lookup(playerID, sessionID)
	if err != nil {
		return err
	}
	sess.Ready(playerID)
	return nil
}

// Answer routes an answer into the owning session.
func (s *Service) Answer(playerID, sessionID uuid.UUID, optionIndex int) error {
	sess, err := s.lookup(playerID, sessionID)
	if err != nil {
		return err
	}
	sess.SubmitAnswer(playerID, optionIndex)
	return nil
}

// Leave forfeits the session.
func (s *Service) Leave(playerID, sessionID uuid.UUID) error {
	sess, err := s.lookup(playerID, sessionID)
	if err != nil {
		return err
	}
	sess.Leave(playerID)
	return nil
}

// ExpireInvites runs until the context is cancelled, draining expired
// invites and notifying both parties.
func (s *Service) ExpireInvites(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, inv := range s.queue.TakeExpired(now) {
				msg := ws.NewMessage(ws.NameInviteExpired, ws.InviteExpiredPayload{
					InviteID: inv.ID.String(),
				})
				_ = s.conns.Send(inv.From.ID, msg)
				_ = s.conns.Send(inv.To, msg)
				s.logger.Debug().Str("invite_id", inv.ID.String()).Msg("invite expired")
			}
		}
	}
}

func (s *Service) lookup(playerID, sessionID uuid.UUID) (*Session, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(playerID) {
		return nil, ErrNotAParticipant
	}
	return sess, nil
}

func (s *Service) profile(playerID uuid.UUID) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[playerID]
	return p, ok
}

func (s *Service) startDuel(ctx context.Context, pair Pair) error {
	questions, err := s.bank.QuestionsForDuel(ctx, pair.Mode, s.cfg.QuestionCount)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	sess := NewSession(uuid.New(), pair.Mode, pair.Players, questions, s.awarder, s.cfg, s.logger)
	if err := s.registry.Register(sess); err != nil {
		sess.Close()
		return err
	}
	sess.Start()

	for _, p := range pair.Players {
		sess.Attach(p.ID, NewConnSink(s.conns, p.ID, s.logger))
	}

	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("mode", pair.Mode).
		Str("player_0", pair.Players[0].ID.String()).
		Str("player_1", pair.Players[1].ID.String()).
		Msg("duel started")
	return nil
}

func (s *Service) startBotDuel(ctx context.Context, player Player) error {
	questions, err := s.bank.QuestionsForDuel(ctx, ModeBot, s.cfg.QuestionCount)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	botPlayer := NewBotPlayer()
	bot := NewBot(botPlayer, questions, s.cfg.BotAccuracy, s.logger)

	sess := NewSession(uuid.New(), ModeBot, [2]Player{player, botPlayer}, questions, s.awarder, s.cfg, s.logger)
	if err := s.registry.Register(sess); err != nil {
		sess.Close()
		return err
	}
	bot.Bind(sess)
	sess.Start()

	sess.Attach(player.ID, NewConnSink(s.conns, player.ID, s.logger))
	sess.Attach(botPlayer.ID, bot)

	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("player_id", player.ID.String()).
		Msg("bot duel started")
	return nil
}
