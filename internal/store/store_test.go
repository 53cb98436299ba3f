package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestStore(t *testing.T) (*Store, *bus.Bus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(func() { b.Close() })
	return New(t.TempDir(), b), b
}

func createSession(t *testing.T, s *Store) *types.Session {
	t.Helper()
	session, err := s.CreateSession(context.Background(), CreateSessionOptions{
		Directory: t.TempDir(),
		Title:     "test session",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func TestCreateAndGetSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	session := createSession(t, s)
	assert.Equal(t, types.SessionIdle, session.State)
	assert.Equal(t, int64(0), session.Revision)
	assert.NotEmpty(t, session.ProjectID)

	got, err := s.GetSession(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "test session", got.Title)
}

func TestGetSessionNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetSession(context.Background(), "ses_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMutateSessionUsesFreshCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	// A finishing turn bumps revision and state after our caller last
	// loaded the session.
	turnCopy := *session
	turnCopy.Revision = 3
	turnCopy.State = types.SessionRunning
	assert.NoError(t, s.UpdateSession(ctx, &turnCopy))

	// A background rename must not resurrect the stale copy.
	updated, err := s.MutateSession(ctx, session.ID, func(cur *types.Session) error {
		cur.Title = "Renaming things"
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), updated.Revision)
	assert.Equal(t, types.SessionRunning, updated.State)
	assert.Equal(t, "Renaming things", updated.Title)

	got, err := s.GetSession(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), got.Revision)
	assert.Equal(t, "Renaming things", got.Title)
}

func TestMutateSessionAbandonsOnError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	sentinel := errors.New("leave it alone")
	_, err := s.MutateSession(ctx, session.ID, func(cur *types.Session) error {
		cur.Title = "should not persist"
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := s.GetSession(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, "test session", got.Title)
}

func TestAppendMessageRequiresSession(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.AppendMessage(context.Background(), "ses_missing", &types.Message{Role: types.RoleUser}, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendAndListMessages(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	first := &types.Message{Role: types.RoleUser}
	err := s.AppendMessage(ctx, session.ID, first, []types.Part{
		&types.TextPart{ID: NewID("prt"), Type: "text", Text: "hello"},
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second := &types.Message{Role: types.RoleAssistant}
	err = s.AppendMessage(ctx, session.ID, second, nil)
	assert.NoError(t, err)

	msgs, err := s.ListMessages(ctx, session.ID, 0)
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].Info.ID)
	assert.Equal(t, second.ID, msgs[1].Info.ID)
	assert.Len(t, msgs[0].Parts, 1)
}

func TestListMessagesSinceRevision(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	old := &types.Message{Role: types.RoleUser}
	assert.NoError(t, s.AppendMessage(ctx, session.ID, old, nil))

	// Complete a turn: revision moves to 1.
	session.Revision = 1
	assert.NoError(t, s.UpdateSession(ctx, session))

	fresh := &types.Message{Role: types.RoleUser}
	assert.NoError(t, s.AppendMessage(ctx, session.ID, fresh, nil))

	msgs, err := s.ListMessages(ctx, session.ID, 1)
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, fresh.ID, msgs[0].Info.ID)
	assert.Equal(t, int64(1), msgs[0].Info.Revision)

	all, err := s.ListMessages(ctx, session.ID, 0)
	assert.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPartKeyOrderIsLexical(t *testing.T) {
	// Parts come back in directory order, so key order must match numeric
	// order well past three digits.
	prev := partKey(0)
	for _, i := range []int{1, 9, 10, 99, 100, 999, 1000, 9999, 99999} {
		key := partKey(i)
		assert.Less(t, prev, key, "partKey(%d) sorts out of order", i)
		prev = key
	}
}

func TestListPartsOrderBeyondThreeDigits(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	msg := &types.Message{Role: types.RoleAssistant}
	assert.NoError(t, s.AppendMessage(ctx, session.ID, msg, nil))

	const n = 1005
	for i := 0; i < n; i++ {
		part := &types.TextPart{ID: NewID("prt"), Type: "text", Text: strconv.Itoa(i)}
		assert.NoError(t, s.putPart(ctx, session.ID, msg.ID, i, part))
	}

	parts, err := s.ListParts(ctx, session.ID, msg.ID)
	assert.NoError(t, err)
	assert.Len(t, parts, n)
	for i, part := range parts {
		assert.Equal(t, strconv.Itoa(i), part.(*types.TextPart).Text)
	}
}

func TestUpdatePartIndexSemantics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	msg := &types.Message{Role: types.RoleAssistant}
	assert.NoError(t, s.AppendMessage(ctx, session.ID, msg, nil))

	text := &types.TextPart{ID: NewID("prt"), Type: "text", Text: "h"}

	// Index past the append position is rejected.
	err := s.UpdatePart(ctx, session.ID, msg.ID, 1, text, "")
	assert.ErrorIs(t, err, ErrPartIndexOutOfRange)

	// Index == count appends.
	assert.NoError(t, s.UpdatePart(ctx, session.ID, msg.ID, 0, text, "h"))

	// In-place streaming update of the same index.
	text.Text = "hi"
	assert.NoError(t, s.UpdatePart(ctx, session.ID, msg.ID, 0, text, "i"))

	parts, err := s.ListParts(ctx, session.ID, msg.ID)
	assert.NoError(t, err)
	assert.Len(t, parts, 1)
	assert.Equal(t, "hi", parts[0].(*types.TextPart).Text)
}

func TestUpdatePartPublishesEvents(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	var mu sync.Mutex
	var deltas []string
	b.Subscribe(bus.PartUpdated, func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		deltas = append(deltas, e.Data.(bus.PartUpdatedData).Delta)
	})

	msg := &types.Message{Role: types.RoleAssistant}
	assert.NoError(t, s.AppendMessage(ctx, session.ID, msg, nil))

	part := &types.TextPart{ID: NewID("prt"), Type: "text"}
	for _, delta := range []string{"a", "b", "c"} {
		part.Text += delta
		assert.NoError(t, s.UpdatePart(ctx, session.ID, msg.ID, 0, part, delta))
	}

	// Publish fans out asynchronously.
	assertEventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deltas) == 3
	})
}

func TestTruncateAfter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	var ids []string
	for i := 0; i < 4; i++ {
		msg := &types.Message{Role: types.RoleUser}
		assert.NoError(t, s.AppendMessage(ctx, session.ID, msg, []types.Part{
			&types.TextPart{ID: NewID("prt"), Type: "text", Text: "m"},
		}))
		ids = append(ids, msg.ID)
	}

	assert.NoError(t, s.TruncateAfter(ctx, session.ID, ids[1]))

	msgs, err := s.ListMessages(ctx, session.ID, 0)
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, ids[0], msgs[0].Info.ID)
	assert.Equal(t, ids[1], msgs[1].Info.ID)

	// Parts of removed messages are gone too.
	parts, err := s.ListParts(ctx, session.ID, ids[2])
	assert.NoError(t, err)
	assert.Empty(t, parts)
}

func TestDeleteSessionRemovesEverything(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	msg := &types.Message{Role: types.RoleUser}
	assert.NoError(t, s.AppendMessage(ctx, session.ID, msg, nil))
	assert.NoError(t, s.PutSnapshot(ctx, &types.Snapshot{SessionID: session.ID, Ref: "abc"}))

	assert.NoError(t, s.DeleteSession(ctx, session.ID))

	_, err := s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	snapshots, err := s.ListSnapshots(ctx, session.ID)
	assert.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestSessionLocksFailFast(t *testing.T) {
	locks := NewSessionLocks()

	release, err := locks.TryAcquire("ses_1")
	assert.NoError(t, err)
	assert.True(t, locks.Held("ses_1"))

	_, err = locks.TryAcquire("ses_1")
	assert.ErrorIs(t, err, ErrSessionBusy)

	// Another session is unaffected.
	release2, err := locks.TryAcquire("ses_2")
	assert.NoError(t, err)
	release2()

	release()
	release() // idempotent
	assert.False(t, locks.Held("ses_1"))

	_, err = locks.TryAcquire("ses_1")
	assert.NoError(t, err)
}

func TestSnapshotOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	session := createSession(t, s)

	assert.NoError(t, s.PutSnapshot(ctx, &types.Snapshot{SessionID: session.ID, Ref: "old", Time: 100}))
	assert.NoError(t, s.PutSnapshot(ctx, &types.Snapshot{SessionID: session.ID, Ref: "new", Time: 200}))

	latest, err := s.LatestSnapshot(ctx, session.ID)
	assert.NoError(t, err)
	assert.Equal(t, "new", latest.Ref)
}

func TestListChildren(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	parent := createSession(t, s)
	child, err := s.CreateSession(ctx, CreateSessionOptions{
		Directory: parent.Directory,
		ParentID:  &parent.ID,
	})
	assert.NoError(t, err)

	children, err := s.ListChildren(ctx, parent.ID)
	assert.NoError(t, err)
	assert.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestNewIDOrdering(t *testing.T) {
	a := NewID("msg")
	b := NewID("msg")
	assert.Less(t, ulidPart(a), ulidPart(b))
	assert.Contains(t, a, "msg_")
}

func assertEventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, waitFor, tick)
}
