package application

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
)

type containerKey struct {
	planID      string
	containerID string
}

// ContainerSnapshot is a server-confirmed container state
type ContainerSnapshot struct {
	Container domain.PlanContainer
	Baseline  []domain.HblDestuffStatus
	Live      []domain.HblDestuffStatus
}

type cacheEntry struct {
	container   domain.PlanContainer
	baseline    []domain.HblDestuffStatus
	hbls        []domain.HblDestuffStatus
	hblSet      string
	version     uint64
	// generation counts reconciles; patches keep it
	generation  uint64
	provisional bool
	fetchedAt   time.Time
}

func (e *cacheEntry) clone() *cacheEntry {
	out := *e
	out.baseline = cloneRows(e.baseline)
	out.hbls = cloneRows(e.hbls)
	if e.container.CompletedAt != nil {
		at := *e.container.CompletedAt
		out.container.CompletedAt = &at
	}
	return &out
}

func (e *cacheEntry) sameContent(other *cacheEntry) bool {
	if e.hblSet != other.hblSet || !reflect.DeepEqual(e.container, other.container) || len(e.hbls) != len(other.hbls) {
		return false
	}
	for i := range e.hbls {
		if !e.hbls[i].Equal(other.hbls[i]) {
			return false
		}
	}
	return true
}

func cloneRows(rows []domain.HblDestuffStatus) []domain.HblDestuffStatus {
	if rows == nil {
		return nil
	}
	out := make([]domain.HblDestuffStatus, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}

func hblSetKey(rows []domain.HblDestuffStatus) string {
	ids := domain.HblIDs(rows)
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

// containerState is client-facing state that survives reconciliation
type containerState struct {
	prompt  ResealPrompt
	history []domain.ResealRecord
}

type pendingNotification struct {
	observers []Observer
	event     Notification
}

func (p pendingNotification) deliver() {
	for _, fn := range p.observers {
		fn(p.event)
	}
}

// viewCache is the versioned per-container hbl cache. Reconcile replaces an
// entry wholesale. Patches mark it provisional until the next reconcile.
// Observers are called outside the lock and only when something changed.
type viewCache struct {
	mu           sync.RWMutex
	entries      map[containerKey]*cacheEntry
	states       map[containerKey]*containerState
	observers    map[containerKey]map[uint64]Observer
	nextObserver uint64
	clock        func() time.Time
}

func newViewCache(clock func() time.Time) *viewCache {
	return &viewCache{
		entries:   make(map[containerKey]*cacheEntry),
		states:    make(map[containerKey]*containerState),
		observers: make(map[containerKey]map[uint64]Observer),
		clock:     clock,
	}
}

// lookup returns a copy of the entry and whether it can be served without a
// refetch. Provisional entries are always served until reconciled.
func (c *viewCache) lookup(key containerKey, ttl time.Duration) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	fresh := entry.provisional || ttl <= 0 || c.clock().Sub(entry.fetchedAt) < ttl
	return entry.clone(), fresh
}

// reconcile installs a server snapshot. It reports whether the resolved view changed.
func (c *viewCache) reconcile(key containerKey, snap ContainerSnapshot) (*cacheEntry, bool) {
	hbls := cloneRows(domain.Resolve(snap.Baseline, snap.Live))
	next := &cacheEntry{
		container: snap.Container,
		baseline:  cloneRows(snap.Baseline),
		hbls:      hbls,
		hblSet:    hblSetKey(hbls),
		fetchedAt: c.clock(),
	}

	c.mu.Lock()
	prev, existed := c.entries[key]
	changed := !existed || !prev.sameContent(next)
	switch {
	case !existed:
		next.version = 1
	case changed:
		next.version = prev.version + 1
	default:
		next.version = prev.version
	}
	if existed {
		next.generation = prev.generation + 1
	}
	c.entries[key] = next
	var pending pendingNotification
	if changed {
		pending = c.pendingLocked(key, Notification{Kind: NotifyReconciled, Version: next.version})
	}
	out := next.clone()
	c.mu.Unlock()

	pending.deliver()
	return out, changed
}

// patch applies an optimistic mutation computed against the entry of
// generation base. When a reconcile replaced that entry in the meantime the
// server snapshot wins and fn is not applied. fn reports whether it changed
// anything.
func (c *viewCache) patch(key containerKey, base uint64, kind NotificationKind, hblID string, fn func(e *cacheEntry) bool) (*cacheEntry, bool) {
	c.mu.Lock()
	current, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if current.generation != base {
		out := current.clone()
		c.mu.Unlock()
		return out, false
	}
	next := current.clone()
	if !fn(next) {
		c.mu.Unlock()
		return current.clone(), false
	}
	next.version = current.version + 1
	next.provisional = true
	c.entries[key] = next
	pending := c.pendingLocked(key, Notification{Kind: kind, HblID: hblID, Version: next.version})
	out := next.clone()
	c.mu.Unlock()

	pending.deliver()
	return out, true
}

// state returns a copy of the client-facing container state
func (c *viewCache) state(key containerKey) (ResealPrompt, []domain.ResealRecord) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.states[key]
	if !ok {
		return ResealPrompt{}, nil
	}
	history := make([]domain.ResealRecord, len(st.history))
	copy(history, st.history)
	return st.prompt, history
}

// updateState mutates the client-facing state. fn reports whether it changed anything.
func (c *viewCache) updateState(key containerKey, fn func(st *containerState) bool) bool {
	c.mu.Lock()
	st, ok := c.states[key]
	if !ok {
		st = &containerState{}
		c.states[key] = st
	}
	if !fn(st) {
		c.mu.Unlock()
		return false
	}
	var version uint64
	if entry, ok := c.entries[key]; ok {
		version = entry.version
	}
	pending := c.pendingLocked(key, Notification{Kind: NotifyResealPrompt, Version: version})
	c.mu.Unlock()

	pending.deliver()
	return true
}

func (c *viewCache) subscribe(key containerKey, fn Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObserver++
	id := c.nextObserver
	if c.observers[key] == nil {
		c.observers[key] = make(map[uint64]Observer)
	}
	c.observers[key][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers[key], id)
		if len(c.observers[key]) == 0 {
			delete(c.observers, key)
		}
	}
}

func (c *viewCache) pendingLocked(key containerKey, event Notification) pendingNotification {
	registered := c.observers[key]
	if len(registered) == 0 {
		return pendingNotification{}
	}
	event.PlanID = key.planID
	event.ContainerID = key.containerID

	ids := make([]uint64, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = registered[id]
	}
	return pendingNotification{observers: observers, event: event}
}
