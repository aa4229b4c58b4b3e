package duel

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePairsInArrivalOrder(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New(), Name: "alice"}
	bob := Player{ID: uuid.New(), Name: "bob"}

	pair, position, err := q.Enqueue(alice, ModeQuick)
	require.NoError(t, err)
	assert.Nil(t, pair)
	assert.Equal(t, 1, position)

	pair, _, err = q.Enqueue(bob, ModeQuick)
	require.NoError(t, err)
	require.NotNil(t, pair)

	// The longer-waiting player takes seat 0.
	assert.Equal(t, alice.ID, pair.Players[0].ID)
	assert.Equal(t, bob.ID, pair.Players[1].ID)
	assert.Equal(t, 0, q.Depth())
}

func TestQueueRejectsDoubleEnqueue(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}

	_, _, err := q.Enqueue(alice, ModeQuick)
	require.NoError(t, err)

	_, _, err = q.Enqueue(alice, ModeQuick)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestQueueCancel(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}

	_, _, err := q.Enqueue(alice, ModeQuick)
	require.NoError(t, err)

	assert.True(t, q.Cancel(alice.ID))
	assert.False(t, q.Cancel(alice.ID))
	assert.Equal(t, 0, q.Depth())

	// A cancelled player never matches.
	bob := Player{ID: uuid.New()}
	pair, _, err := q.Enqueue(bob, ModeQuick)
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestQueueModesDoNotMix(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())

	pair, _, err := q.Enqueue(Player{ID: uuid.New()}, ModeQuick)
	require.NoError(t, err)
	assert.Nil(t, pair)

	pair, _, err = q.Enqueue(Player{ID: uuid.New()}, "ranked")
	require.NoError(t, err)
	assert.Nil(t, pair)
	assert.Equal(t, 2, q.Depth())
}

func TestQueueInviteAccept(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New(), Name: "alice"}
	bob := Player{ID: uuid.New(), Name: "bob"}

	inv, err := q.Challenge(alice, bob.ID)
	require.NoError(t, err)

	pair, err := q.AcceptInvite(inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, pair.Players[0].ID)
	assert.Equal(t, bob.ID, pair.Players[1].ID)

	// An invite is single-use.
	_, err = q.AcceptInvite(inv.ID, bob)
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestQueueInviteOnlyTargetMayAccept(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}
	bob := Player{ID: uuid.New()}
	carol := Player{ID: uuid.New()}

	inv, err := q.Challenge(alice, bob.ID)
	require.NoError(t, err)

	_, err = q.AcceptInvite(inv.ID, carol)
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestQueueInviteExpires(t *testing.T) {
	q := NewQueue(20*time.Millisecond, zerolog.Nop())
	alice := Player{ID: uuid.New()}
	bob := Player{ID: uuid.New()}

	inv, err := q.Challenge(alice, bob.ID)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = q.AcceptInvite(inv.ID, bob)
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestQueueTakeExpired(t *testing.T) {
	q := NewQueue(20*time.Millisecond, zerolog.Nop())
	alice := Player{ID: uuid.New()}

	inv, err := q.Challenge(alice, uuid.New())
	require.NoError(t, err)

	assert.Empty(t, q.TakeExpired(time.Now()))

	expired := q.TakeExpired(time.Now().Add(time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, inv.ID, expired[0].ID)

	// Drained invites are gone.
	assert.Empty(t, q.TakeExpired(time.Now().Add(time.Second)))
}

func TestQueueSelfChallenge(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}

	_, err := q.Challenge(alice, alice.ID)
	assert.ErrorIs(t, err, ErrSelfChallenge)
}

func TestQueueDeclineInvite(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}
	bob := Player{ID: uuid.New()}

	inv, err := q.Challenge(alice, bob.ID)
	require.NoError(t, err)

	declined, err := q.DeclineInvite(inv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, declined.From.ID)

	_, err = q.DeclineInvite(inv.ID, bob.ID)
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestQueueDropRemovesTicketAndInvites(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}
	bob := Player{ID: uuid.New()}

	_, _, err := q.Enqueue(alice, ModeQuick)
	require.NoError(t, err)
	inv, err := q.Challenge(alice, bob.ID)
	require.NoError(t, err)

	q.Drop(alice.ID)

	assert.Equal(t, 0, q.Depth())
	_, err = q.AcceptInvite(inv.ID, bob)
	assert.ErrorIs(t, err, ErrInviteExpired)
}

func TestQueueAcceptPullsBothOutOfQueue(t *testing.T) {
	q := NewQueue(time.Minute, zerolog.Nop())
	alice := Player{ID: uuid.New()}
	bob := Player{ID: uuid.New()}

	inv, err := q.Challenge(alice, bob.ID)
	require.NoError(t, err)

	// Both queued in different modes so they never auto-match.
	_, _, err = q.Enqueue(alice, ModeQuick)
	require.NoError(t, err)
	_, _, err = q.Enqueue(bob, "ranked")
	require.NoError(t, err)

	_, err = q.AcceptInvite(inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Depth())
}
