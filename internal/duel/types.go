package duel

import (
	"time"

	"github.com/google/uuid"

	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// Session lifecycle states.
const (
	StatusMatchmaking = "matchmaking"
	StatusWaiting     = "waiting"
	StatusCountdown   = "countdown"
	StatusQuestion    = "question"
	StatusResult      = "result"
	StatusFinished    = "finished"
)

// Duel modes.
const (
	ModeQuick = "quick"
	ModeBot   = "bot"
)

// Reasons a session reached the finished state.
const (
	ReasonCompleted = "completed"
	ReasonForfeit   = "forfeit"
	ReasonAbandoned = "abandoned"
)

// WinnerDraw is the winner sentinel broadcast when both players finish with
// equal scores.
const WinnerDraw = "draw"

// Player is the identity a session plays under. Presence state lives in the
// connection registry, profile data comes from the token claims.
type Player struct {
	ID     uuid.UUID
	Name   string
	Avatar string
	IsBot  bool
}

// Info converts the player to its wire representation.
func (p Player) Info() ws.PlayerInfo {
	return ws.PlayerInfo{
		ID:     p.ID.String(),
		Name:   p.Name,
		Avatar: p.Avatar,
	}
}

// Config groups the gameplay knobs shared by queue, sessions, and registry.
type Config struct {
	QuestionCount    int
	PointsPerCorrect int
	Countdown        time.Duration
	RevealDelay      time.Duration
	WaitingTimeout   time.Duration
	DisconnectGrace  time.Duration
	InviteTTL        time.Duration
	StaleTimeout     time.Duration
	FinishedGrace    time.Duration
	SweepInterval    time.Duration
	BotAccuracy      float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QuestionCount:    5,
		PointsPerCorrect: 100,
		Countdown:        3 * time.Second,
		RevealDelay:      2 * time.Second,
		WaitingTimeout:   5 * time.Second,
		DisconnectGrace:  15 * time.Second,
		InviteTTL:        60 * time.Second,
		StaleTimeout:     30 * time.Second,
		FinishedGrace:    10 * time.Second,
		SweepInterval:    5 * time.Second,
		BotAccuracy:      0.7,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QuestionCount <= 0 {
		c.QuestionCount = def.QuestionCount
	}
	if c.PointsPerCorrect <= 0 {
		c.PointsPerCorrect = def.PointsPerCorrect
	}
	if c.Countdown <= 0 {
		c.Countdown = def.Countdown
	}
	if c.RevealDelay <= 0 {
		c.RevealDelay = def.RevealDelay
	}
	if c.WaitingTimeout <= 0 {
		c.WaitingTimeout = def.WaitingTimeout
	}
	if c.DisconnectGrace <= 0 {
		c.DisconnectGrace = def.DisconnectGrace
	}
	if c.InviteTTL <= 0 {
		c.InviteTTL = def.InviteTTL
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = def.StaleTimeout
	}
	if c.FinishedGrace <= 0 {
		c.FinishedGrace = def.FinishedGrace
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.BotAccuracy <= 0 || c.BotAccuracy > 1 {
		c.BotAccuracy = def.BotAccuracy
	}
	return c
}

// Error is a protocol-level failure surfaced to exactly one client.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrAlreadyInSession      = &Error{Code: "already_in_session", Message: "Player is already in an active session"}
	ErrAlreadyQueued         = &Error{Code: "already_queued", Message: "Player is already waiting in the matchmaking queue"}
	ErrInviteExpired         = &Error{Code: "invite_expired", Message: "Invite has expired or does not exist"}
	ErrInviteConsumed        = &Error{Code: "invite_consumed", Message: "Invite was already used"}
	ErrSelfChallenge         = &Error{Code: "self_challenge", Message: "Players cannot challenge themselves"}
	ErrTargetOffline         = &Error{Code: "target_offline", Message: "Challenged player is not online"}
	ErrSessionNotFound       = &Error{Code: "session_not_found", Message: "Session does not exist"}
	ErrNotAParticipant       = &Error{Code: "not_a_participant", Message: "Player is not part of this session"}
	ErrInvalidStateForAction = &Error{Code: "invalid_state", Message: "Action is not valid in the session's current state"}
	ErrAlreadyAnswered       = &Error{Code: "already_answered", Message: "Current question was already answered"}
)
