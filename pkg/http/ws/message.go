package ws

import "encoding/json"

// Event name constants for the duel WebSocket protocol.
const (
	// Client -> Server
	NameFindMatch         = "find_match"
	NameCancelMatchmaking = "cancel_matchmaking"
	NameChallenge         = "challenge"
	NameAcceptInvite      = "accept_invite"
	NameDeclineInvite     = "decline_invite"
	NameReady             = "ready"
	NameAnswer            = "answer"
	NameLeave             = "leave"

	// Server -> Client
	NameQueued           = "queued"
	NameInvite           = "invite"
	NameInviteExpired    = "invite_expired"
	NameInviteDeclined   = "invite_declined"
	NameSessionCreated   = "session_created"
	NameCountdown        = "countdown"
	NameQuestion         = "question"
	NameOpponentAnswered = "opponent_answered"
	NameAnswerAck        = "answer_ack"
	NameRoundResult      = "round_result"
	NameSessionFinished  = "session_finished"
	NameError            = "error"
)

// Message is the envelope every frame travels in, both directions.
type Message struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope, marshalling the payload. Callers pass plain
// structs, so marshalling does not fail in practice.
func NewMessage(name string, payload any) Message {
	msg := Message{Name: name}
	if payload != nil {
		msg.Payload, _ = json.Marshal(payload)
	}
	return msg
}

// Client Messages (incoming)

type FindMatchPayload struct {
	Mode string `json:"mode,omitempty"` // "quick" (default) or "bot"
}

type ChallengePayload struct {
	TargetPlayerID string `json:"target_player_id"`
}

type AcceptInvitePayload struct {
	InviteID string `json:"invite_id"`
}

type DeclineInvitePayload struct {
	InviteID string `json:"invite_id"`
}

type ReadyPayload struct {
	SessionID string `json:"session_id"`
}

type AnswerPayload struct {
	SessionID   string `json:"session_id"`
	OptionIndex int    `json:"option_index"`
}

type LeavePayload struct {
	SessionID string `json:"session_id"`
}

// Server Messages (outgoing)

type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type QueuedPayload struct {
	Mode     string `json:"mode"`
	Position int    `json:"position"`
}

type InvitePayload struct {
	InviteID         string     `json:"invite_id"`
	From             PlayerInfo `json:"from"`
	ExpiresInSeconds int        `json:"expires_in_seconds"`
}

type InviteExpiredPayload struct {
	InviteID string `json:"invite_id"`
}

type InviteDeclinedPayload struct {
	InviteID string     `json:"invite_id"`
	By       PlayerInfo `json:"by"`
}

type SessionCreatedPayload struct {
	SessionID     string     `json:"session_id"`
	Opponent      PlayerInfo `json:"opponent"`
	QuestionCount int        `json:"question_count"`
}

type CountdownPayload struct {
	SessionID        string `json:"session_id"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// QuestionPayload never carries the correct option index.
type QuestionPayload struct {
	SessionID        string   `json:"session_id"`
	Index            int      `json:"index"`
	Total            int      `json:"total"`
	Text             string   `json:"text"`
	Code             string   `json:"code,omitempty"`
	Options          []string `json:"options"`
	DeadlineUnixMs   int64    `json:"deadline_unix_ms"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

type OpponentAnsweredPayload struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
}

type AnswerAckPayload struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Accepted  bool   `json:"accepted"`
}

type RoundResultPayload struct {
	SessionID      string         `json:"session_id"`
	Index          int            `json:"index"`
	CorrectIndex   int            `json:"correct_index"`
	Scores         map[string]int `json:"scores"`
	Streaks        map[string]int `json:"streaks"`
	FirstCorrectID string         `json:"first_correct_id,omitempty"`
}

// SessionFinishedPayload reports the terminal state. WinnerID is a player id,
// the literal "draw", or empty when both players abandoned the session.
type SessionFinishedPayload struct {
	SessionID   string         `json:"session_id"`
	WinnerID    string         `json:"winner_id"`
	FinalScores map[string]int `json:"final_scores"`
	Reason      string         `json:"reason"` // completed, forfeit, abandoned
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
