package handlers

import "sync"

// chatLocks hands out one mutex per chat id. Holding a chat's mutex across
// the durable append and the broadcast keeps the two totally ordered per
// chat; different chats never contend.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the chat's mutex and returns its release function.
func (l *chatLocks) lock(chatID string) func() {
	l.mu.Lock()
	m, ok := l.locks[chatID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[chatID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
