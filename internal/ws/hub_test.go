package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"peer-server/internal/models"
)

// fakeConn records frames written to it and can be told to fail writes or
// deadline setup.
type fakeConn struct {
	mu          sync.Mutex
	frames      []models.FeedEvent
	deadlines   []time.Time
	writeErr    error
	deadlineErr error
	closed      bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if ev, ok := v.(models.FeedEvent); ok {
		f.frames = append(f.frames, ev)
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadlineErr != nil {
		return f.deadlineErr
	}
	f.deadlines = append(f.deadlines, t)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []models.FeedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FeedEvent, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func liveMsg(content string) models.FeedEvent {
	return models.FeedEvent{Cmd: "livemsg", Val: &models.LiveMessage{Content: content}}
}

func TestBroadcastReachesAllMembers(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	hub.Register("chat", "u1", c1, ConnInfo{UserID: "u1"})
	hub.Register("chat", "u2", c2, ConnInfo{UserID: "u2"})

	hub.Broadcast("chat", liveMsg("hi"))

	require.Len(t, c1.received(), 1)
	require.Len(t, c2.received(), 1)
	require.Equal(t, "hi", c1.received()[0].Val.Content)
}

func TestBroadcastPreservesOrder(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{}
	hub.Register("chat", "u1", c1, ConnInfo{UserID: "u1"})

	hub.Broadcast("chat", liveMsg("first"))
	hub.Broadcast("chat", liveMsg("second"))

	frames := c1.received()
	require.Len(t, frames, 2)
	require.Equal(t, "first", frames[0].Val.Content)
	require.Equal(t, "second", frames[1].Val.Content)
}

func TestBroadcastScopedToChat(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	hub.Register("chat-a", "u1", c1, ConnInfo{UserID: "u1"})
	hub.Register("chat-b", "u1", c2, ConnInfo{UserID: "u1"})

	hub.Broadcast("chat-a", liveMsg("hi"))

	require.Len(t, c1.received(), 1)
	require.Empty(t, c2.received())
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	hub := NewHub()
	old := &fakeConn{}
	fresh := &fakeConn{}
	hub.Register("chat", "u1", old, ConnInfo{UserID: "u1"})
	hub.Register("chat", "u1", fresh, ConnInfo{UserID: "u1"})

	require.True(t, old.isClosed())

	hub.Broadcast("chat", liveMsg("hi"))
	require.Empty(t, old.received())
	require.Len(t, fresh.received(), 1)
}

func TestBroadcastEvictsFailedConnection(t *testing.T) {
	hub := NewHub()
	broken := &fakeConn{writeErr: errors.New("write: broken pipe")}
	healthy := &fakeConn{}
	hub.Register("chat", "u1", broken, ConnInfo{UserID: "u1"})
	hub.Register("chat", "u2", healthy, ConnInfo{UserID: "u2"})

	hub.Broadcast("chat", liveMsg("one"))

	require.True(t, broken.isClosed())
	require.Len(t, healthy.received(), 1)

	// the broken connection is gone; the healthy one keeps receiving
	hub.Broadcast("chat", liveMsg("two"))
	require.Len(t, healthy.received(), 2)

	hub.mu.RLock()
	_, stillThere := hub.feeds["chat"]["u1"]
	hub.mu.RUnlock()
	require.False(t, stillThere)
}

func TestBroadcastBoundsEveryWrite(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{}
	hub.Register("chat", "u1", c1, ConnInfo{UserID: "u1"})

	before := time.Now()
	hub.Broadcast("chat", liveMsg("one"))
	hub.Broadcast("chat", liveMsg("two"))

	c1.mu.Lock()
	deadlines := append([]time.Time(nil), c1.deadlines...)
	c1.mu.Unlock()

	// every push carries a fresh write deadline so a hung transport fails
	// instead of blocking fan-out
	require.Len(t, deadlines, 2)
	for _, d := range deadlines {
		require.True(t, d.After(before))
	}
}

func TestBroadcastEvictsOnDeadlineFailure(t *testing.T) {
	hub := NewHub()
	dead := &fakeConn{deadlineErr: errors.New("use of closed network connection")}
	healthy := &fakeConn{}
	hub.Register("chat", "u1", dead, ConnInfo{UserID: "u1"})
	hub.Register("chat", "u2", healthy, ConnInfo{UserID: "u2"})

	hub.Broadcast("chat", liveMsg("one"))

	require.True(t, dead.isClosed())
	require.Len(t, healthy.received(), 1)
}

func TestUnregisterIgnoresStaleConnection(t *testing.T) {
	hub := NewHub()
	old := &fakeConn{}
	fresh := &fakeConn{}
	hub.Register("chat", "u1", old, ConnInfo{UserID: "u1"})
	hub.Register("chat", "u1", fresh, ConnInfo{UserID: "u1"})

	// teardown of the replaced connection must not evict its successor
	hub.Unregister("chat", "u1", old)

	hub.Broadcast("chat", liveMsg("hi"))
	require.Len(t, fresh.received(), 1)
}

func TestUnregisterRemovesEmptyRoom(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{}
	hub.Register("chat", "u1", c1, ConnInfo{UserID: "u1"})
	hub.Unregister("chat", "u1", c1)

	hub.mu.RLock()
	_, ok := hub.feeds["chat"]
	hub.mu.RUnlock()
	require.False(t, ok)
}

func TestBroadcastToUnknownChatIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("nowhere", liveMsg("hi"))
}

func TestConcurrentBroadcasts(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	hub.Register("chat", "u1", c1, ConnInfo{UserID: "u1"})
	hub.Register("chat", "u2", c2, ConnInfo{UserID: "u2"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast("chat", liveMsg("x"))
		}()
	}
	wg.Wait()

	require.Len(t, c1.received(), 20)
	require.Len(t, c2.received(), 20)
}
