package duel

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ticket is one player's place in the matchmaking queue.
type Ticket struct {
	Player   Player
	Mode     string
	QueuedAt time.Time
}

// Invite is a pending direct challenge. It can be consumed exactly once,
// either by acceptance or by expiry.
type Invite struct {
	ID        uuid.UUID
	From      Player
	To        uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	consumed  bool
}

// Pair is a matched duo ready to become a session.
type Pair struct {
	Mode    string
	Players [2]Player
}

// Queue pairs players for duels. Quick matches are first-come first-served:
// whoever has waited longest is matched first. Direct challenges bypass the
// queue through time-limited invites.
type Queue struct {
	mu      sync.Mutex
	waiting []*Ticket
	byID    map[uuid.UUID]*Ticket
	invites map[uuid.UUID]*Invite
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewQueue creates an empty matchmaking queue.
func NewQueue(inviteTTL time.Duration, logger zerolog.Logger) *Queue {
	if inviteTTL <= 0 {
		inviteTTL = DefaultConfig().InviteTTL
	}
	return &Queue{
		byID:    make(map[uuid.UUID]*Ticket),
		invites: make(map[uuid.UUID]*Invite),
		ttl:     inviteTTL,
		logger:  logger.With().Str("component", "queue").Logger(),
	}
}

// Enqueue adds a player to the queue. If an opponent is already waiting the
// pair is returned immediately and both tickets are removed; otherwise the
// caller gets the player's 1-based queue position.
func (q *Queue) Enqueue(player Player, mode string) (*Pair, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[player.ID]; ok {
		return nil, 0, ErrAlreadyQueued
	}

	for i, t := range q.waiting {
		if t.Mode != mode {
			continue
		}
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		delete(q.byID, t.Player.ID)
		metricQueueDepth.Set(float64(len(q.waiting)))
		return &Pair{Mode: mode, Players: [2]Player{t.Player, player}}, 0, nil
	}

	ticket := &Ticket{Player: player, Mode: mode, QueuedAt: time.Now()}
	q.waiting = append(q.waiting, ticket)
	q.byID[player.ID] = ticket
	metricQueueDepth.Set(float64(len(q.waiting)))
	return nil, len(q.waiting), nil
}

// Cancel removes a player's ticket. Reports whether one was present.
func (q *Queue) Cancel(playerID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(playerID)
}

// Drop removes a player's ticket and any invites they issued or received.
// Called when the player's connection goes away.
func (q *Queue) Drop(playerID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(playerID)
	for id, inv := range q.invites {
		if inv.From.ID == playerID || inv.To == playerID {
			delete(q.invites, id)
		}
	}
}

func (q *Queue) removeLocked(playerID uuid.UUID) bool {
	if _, ok := q.byID[playerID]; !ok {
		return false
	}
	delete(q.byID, playerID)
	for i, t := range q.waiting {
		if t.Player.ID == playerID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	metricQueueDepth.Set(float64(len(q.waiting)))
	return true
}

// Challenge issues a direct invite from one player to another.
func (q *Queue) Challenge(from Player, to uuid.UUID) (*Invite, error) {
	if from.ID == to {
		return nil, ErrSelfChallenge
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	inv := &Invite{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}
	q.invites[inv.ID] = inv

	q.logger.Debug().
		Str("invite_id", inv.ID.String()).
		Str("from", from.ID.String()).
		Str("to", to.String()).
		Msg("invite created")
	return inv, nil
}

// AcceptInvite consumes an invite and returns the resulting pair. The
// challenger takes seat 0. Expired or unknown invites fail with
// ErrInviteExpired; a second acceptance of the same invite fails with
// ErrInviteConsumed.
func (q *Queue) AcceptInvite(inviteID uuid.UUID, accepter Player) (*Pair, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	inv, ok := q.invites[inviteID]
	if !ok || inv.To != accepter.ID {
		return nil, ErrInviteExpired
	}
	if inv.consumed {
		return nil, ErrInviteConsumed
	}
	if time.Now().After(inv.ExpiresAt) {
		delete(q.invites, inviteID)
		return nil, ErrInviteExpired
	}

	inv.consumed = true
	delete(q.invites, inviteID)

	// Accepting a challenge pulls both players out of any quick-match queue
	// position they still hold.
	q.removeLocked(accepter.ID)
	q.removeLocked(inv.From.ID)

	return &Pair{Mode: ModeQuick, Players: [2]Player{inv.From, accepter}}, nil
}

// DeclineInvite removes a pending invite and returns it so the challenger
// can be notified.
func (q *Queue) DeclineInvite(inviteID, decliner uuid.UUID) (*Invite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	inv, ok := q.invites[inviteID]
	if !ok || inv.To != decliner {
		return nil, ErrInviteExpired
	}
	delete(q.invites, inviteID)
	return inv, nil
}

// TakeExpired removes and returns all invites past their deadline. The
// service periodically drains these to notify both parties.
func (q *Queue) TakeExpired(now time.Time) []*Invite {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*Invite
	for id, inv := range q.invites {
		if now.After(inv.ExpiresAt) {
			expired = append(expired, inv)
			delete(q.invites, id)
		}
	}
	return expired
}

// Depth returns the number of players currently waiting.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
