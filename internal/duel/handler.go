package duel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/auth"
	httperrors "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/errors"
	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler terminates duel WebSocket connections. It authenticates the
// upgrade request, pumps frames, and routes each inbound event to the
// service.
type Handler struct {
	service *Service
	conns   *ws.Registry
	tokens  *auth.Manager
	logger  zerolog.Logger
}

// NewHandler creates the WebSocket handler.
func NewHandler(service *Service, conns *ws.Registry, tokens *auth.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		conns:   conns,
		tokens:  tokens,
		logger:  logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket upgrades the request and runs the connection until the
// client goes away. The token travels in the "token" query parameter or a
// bearer Authorization header.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(bearerToken(r))
	if err != nil {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Invalid or expired token")
		return
	}

	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	player := Player{
		ID:     claims.PlayerID,
		Name:   claims.DisplayName,
		Avatar: claims.Avatar,
	}

	connLogger := h.logger.With().Str("player_id", player.ID.String()).Logger()
	conn := ws.NewConnection(socket, connLogger)
	h.conns.Attach(player.ID, conn)
	h.service.OnConnect(player)

	go conn.WritePump()
	conn.ReadPump(func(msg ws.Message) error {
		h.dispatch(player.ID, msg)
		return nil
	})

	// A reconnect may already have replaced this connection; only a real
	// disconnect triggers the grace path.
	if h.conns.Detach(player.ID, conn) {
		h.service.OnDisconnect(player.ID)
	}
}

func (h *Handler) dispatch(playerID uuid.UUID, msg ws.Message) {
	ctx := context.Background()

	switch msg.Name {
	case ws.NameFindMatch:
		var payload ws.FindMatchPayload
		if msg.Payload != nil {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "Malformed find_match payload")
				return
			}
		}
		queued, position, err := h.service.FindMatch(ctx, playerID, payload.Mode)
		if err != nil {
			h.sendServiceError(playerID, err)
			return
		}
		if queued {
			h.send(playerID, ws.NewMessage(ws.NameQueued, ws.QueuedPayload{
				Mode:     modeOrDefault(payload.Mode),
				Position: position,
			}))
		}

	case ws.NameCancelMatchmaking:
		h.service.CancelMatchmaking(playerID)

	case ws.NameChallenge:
		var payload ws.ChallengePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "Malformed challenge payload")
			return
		}
		targetID, err := uuid.Parse(payload.TargetPlayerID)
		if err != nil {
			h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "target_player_id is not a valid id")
			return
		}
		if _, err := h.service.Challenge(playerID, targetID); err != nil {
			h.sendServiceError(playerID, err)
		}

	case ws.NameAcceptInvite:
		var payload ws.AcceptInvitePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "Malformed accept_invite payload")
			return
		}
		inviteID, err := uuid.Parse(payload.InviteID)
		if err != nil {
			h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "invite_id is not a valid id")
			return
		}
		if err := h.service.AcceptInvite(ctx, playerID, inviteID); err != nil {
			h.sendServiceError(playerID, err)
		}

	case ws.NameDeclineInvite:
		var payload ws.DeclineInvitePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "Malformed decline_invite payload")
			return
		}
		inviteID, err := uuid.Parse(payload.InviteID)
		if err != nil {
			h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "invite_id is not a valid id")
			return
		}
		if err := h.service.DeclineInvite(playerID, inviteID); err != nil {
			h.sendServiceError(playerID, err)
		}

	case ws.NameReady:
		var payload ws.ReadyPayload
		sessionID, ok := h.sessionID(playerID, msg.Payload, &payload, func() string { return payload.SessionID })
		if !ok {
			return
		}
		if err := h.service.Ready(playerID, sessionID); err != nil {
			h.sendServiceError(playerID, err)
		}

	case ws.NameAnswer:
		var payload ws.AnswerPayload
		sessionID, ok := h.sessionID(playerID, msg.Payload, &payload, func() string { return payload.SessionID })
		if !ok {
			return
		}
		if err := h.service.Answer(playerID, sessionID, payload.OptionIndex); err != nil {
			h.sendServiceError(playerID, err)
		}

	case ws.NameLeave:
		var payload ws.LeavePayload
		sessionID, ok := h.sessionID(playerID, msg.Payload, &payload, func() string { return payload.SessionID })
		if !ok {
			return
		}
		if err := h.service.Leave(playerID, sessionID); err != nil {
			h.sendServiceError(playerID, err)
		}

	default:
		h.sendError(playerID, httperrors.ErrCodeUnknownEvent, "Unknown event: "+msg.Name)
	}
}

// sessionID unmarshals a payload and parses the session id it carries,
// reporting protocol errors to the client on failure.
func (h *Handler) sessionID(playerID uuid.UUID, raw json.RawMessage, payload any, id func() string) (uuid.UUID, bool) {
	if err := json.Unmarshal(raw, payload); err != nil {
		h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "Malformed payload")
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(id())
	if err != nil {
		h.sendError(playerID, httperrors.ErrCodeInvalidPayload, "session_id is not a valid id")
		return uuid.Nil, false
	}
	return sessionID, true
}

func (h *Handler) sendServiceError(playerID uuid.UUID, err error) {
	var duelErr *Error
	if errors.As(err, &duelErr) {
		h.sendError(playerID, duelErr.Code, duelErr.Message)
		return
	}
	h.logger.Error().Err(err).Str("player_id", playerID.String()).Msg("duel operation failed")
	h.sendError(playerID, httperrors.ErrCodeInternalError, "Internal error")
}

func (h *Handler) sendError(playerID uuid.UUID, code, message string) {
	h.send(playerID, ws.NewMessage(ws.NameError, ws.ErrorPayload{Code: code, Message: message}))
}

func (h *Handler) send(playerID uuid.UUID, msg ws.Message) {
	if err := h.conns.Send(playerID, msg); err != nil {
		h.logger.Debug().Err(err).Str("player_id", playerID.String()).Msg("send failed")
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return ModeQuick
	}
	return mode
}
