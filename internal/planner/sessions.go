package planner

import (
	"container/list"
	"sync"

	"github.com/fyrsmithlabs/launchplan/internal/assembler"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// sessionCache keeps the most recently used sessions, evicting the least
// recently used one when full.
type sessionCache struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

type sessionEntry struct {
	key     string
	session *assembler.Session
}

func newSessionCache(max int) *sessionCache {
	return &sessionCache{max: max, order: list.New(), items: make(map[string]*list.Element)}
}

// get returns the session for (owner, sessionID), creating it if needed.
// An empty session ID gets a fresh session that is not kept.
func (c *sessionCache) get(owner plan.Owner, sessionID string) *assembler.Session {
	if sessionID == "" {
		return assembler.NewSession(owner)
	}
	key := owner.AccountID + "\x00" + owner.SessionID + "\x00" + sessionID

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*sessionEntry).session
	}

	entry := &sessionEntry{key: key, session: assembler.NewSession(owner)}
	c.items[key] = c.order.PushFront(entry)
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*sessionEntry).key)
	}
	return entry.session
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
