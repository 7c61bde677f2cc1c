// Package cache keeps the last payload fetched per account so buttons can be
// redrawn without a network round trip.
package cache

import (
	"harvest-deck/internal/domain"
)

// Kind selects which query a cache entry holds.
type Kind int

const (
	Entries Kind = iota // the week's entries, feeding totals buttons
	Running             // currently running entries, feeding timer buttons
)

func (k Kind) String() string {
	if k == Running {
		return "running"
	}
	return "entries"
}

type key struct {
	kind    Kind
	account string
}

// Entry is the last payload applied for one (kind, account).
type Entry struct {
	TimeEntries []domain.TimeEntry
	Err         error
	Seq         uint64
}

// Cache is not safe for concurrent use; the engine loop owns it.
type Cache struct {
	entries     map[key]Entry
	accounts    []string
	accountsSeq uint64
}

func New() *Cache {
	return &Cache{entries: make(map[key]Entry)}
}

// Put applies a fetch result tagged with the cycle sequence that issued it.
// It returns false, leaving the cache untouched, when a later sequence has
// already been applied for the same kind and account.
//
// A failed Entries fetch stores an empty payload so totals read zero instead
// of stale hours. A failed Running fetch stores only the error.
func (c *Cache) Put(kind Kind, accountID string, seq uint64, entries []domain.TimeEntry, err error) bool {
	k := key{kind, accountID}
	if prev, ok := c.entries[k]; ok && prev.Seq > seq {
		return false
	}
	e := Entry{Seq: seq, Err: err}
	switch {
	case err == nil:
		e.TimeEntries = entries
	case kind == Entries:
		e.TimeEntries = []domain.TimeEntry{}
	}
	c.entries[k] = e
	return true
}

// Get returns the cached entry for kind and account.
func (c *Cache) Get(kind Kind, accountID string) (Entry, bool) {
	e, ok := c.entries[key{kind, accountID}]
	return e, ok
}

// SetAccounts records the account IDs of a completed totals pass, the set a
// cache replay iterates over. A pass older than the recorded one is ignored.
func (c *Cache) SetAccounts(seq uint64, accountIDs []string) bool {
	if c.accounts != nil && seq < c.accountsSeq {
		return false
	}
	c.accounts = append([]string{}, accountIDs...)
	c.accountsSeq = seq
	return true
}

// Accounts returns the account IDs of the latest completed totals pass.
func (c *Cache) Accounts() []string {
	return c.accounts
}
