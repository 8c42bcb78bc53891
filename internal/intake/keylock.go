package intake

import (
	"sync"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// keyedMutex serializes work per key. Entries are dropped once nobody
// holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// unsavedStates holds conversation states the store refused. The next
// message of that conversation continues from here, so a step whose side
// effects already happened (an issued ticket) is not replayed.
type unsavedStates struct {
	mu     sync.Mutex
	states map[string]*domain.ConversationState
}

func newUnsavedStates() *unsavedStates {
	return &unsavedStates{states: make(map[string]*domain.ConversationState)}
}

func (u *unsavedStates) get(id string) (*domain.ConversationState, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	st, ok := u.states[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

func (u *unsavedStates) put(st *domain.ConversationState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.states[st.ConversationID] = st.Clone()
}

func (u *unsavedStates) drop(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.states, id)
}

func (u *unsavedStates) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.states)
}
