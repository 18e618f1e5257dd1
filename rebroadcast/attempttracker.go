package rebroadcast

import (
	"bytes"
	"time"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/google/btree"
)

// entry records how many times a transaction has been rebroadcast and when
// the most recent attempt happened.
type entry struct {
	wtxid       chainhash.Hash
	lastAttempt time.Time
	count       uint32
}

// entryKey is the ordered-index-only view of an entry: sorted by
// lastAttempt, ties broken by wtxid bytes for a deterministic total order.
type entryKey struct {
	lastAttempt time.Time
	wtxid       chainhash.Hash
}

// Less implements btree.Item.
func (k entryKey) Less(than btree.Item) bool {
	other := than.(entryKey)
	if !k.lastAttempt.Equal(other.lastAttempt) {
		return k.lastAttempt.Before(other.lastAttempt)
	}
	return bytes.Compare(k.wtxid[:], other.wtxid[:]) < 0
}

func keyOf(e entry) entryKey {
	return entryKey{lastAttempt: e.lastAttempt, wtxid: e.wtxid}
}

// btreeDegree matches netsync's choice; both packages size their ordered
// indices the same way for the same reason.
const btreeDegree = 32

// attemptTracker is a bounded store of per-transaction rebroadcast attempts,
// indexed both by wtxid (O(1) lookup) and by last-attempt time (ordered scan
// of the oldest entry, for trim). Callers must hold the enclosing Handler's
// mutex; this type has no locking of its own.
type attemptTracker struct {
	byHash map[chainhash.Hash]entry
	byTime *btree.BTree

	maxEntries int
	maxAge     time.Duration
}

func newAttemptTracker(cfg Config) *attemptTracker {
	return &attemptTracker{
		byHash:     make(map[chainhash.Hash]entry),
		byTime:     btree.New(btreeDegree),
		maxEntries: cfg.MaxEntries,
		maxAge:     cfg.MaxEntryAge,
	}
}

func (t *attemptTracker) len() int { return len(t.byHash) }

func (t *attemptTracker) get(wtxid chainhash.Hash) (entry, bool) {
	e, ok := t.byHash[wtxid]
	return e, ok
}

// admitNew inserts a fresh entry with count 1, as the per-transaction policy
// requires on first rebroadcast of a wtxid.
func (t *attemptTracker) admitNew(wtxid chainhash.Hash, now time.Time) {
	e := entry{wtxid: wtxid, lastAttempt: now, count: 1}
	t.byHash[wtxid] = e
	t.byTime.ReplaceOrInsert(keyOf(e))
}

// advance updates an existing entry's last-attempt time and increments its
// count, as the per-transaction policy requires on a re-admitted attempt.
func (t *attemptTracker) advance(wtxid chainhash.Hash, now time.Time) {
	e, exists := t.byHash[wtxid]
	if !exists {
		return
	}
	t.byTime.Delete(keyOf(e))
	e.lastAttempt = now
	e.count++
	t.byHash[wtxid] = e
	t.byTime.ReplaceOrInsert(keyOf(e))
}

// remove deletes the entry for wtxid if present. Handler.RemoveFromAttemptTracker
// calls it when a transaction leaves the mempool; trim deletes entries itself.
func (t *attemptTracker) remove(wtxid chainhash.Hash) {
	e, exists := t.byHash[wtxid]
	if !exists {
		return
	}
	t.byTime.Delete(keyOf(e))
	delete(t.byHash, wtxid)
}

// trim erases entries older than maxAge, then erases the oldest entries
// until the tracker's size no longer exceeds maxEntries. Each step strictly
// reduces the tracker's size, so trim always terminates.
func (t *attemptTracker) trim(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	for {
		item := t.byTime.Min()
		if item == nil {
			break
		}
		k := item.(entryKey)
		if !k.lastAttempt.Before(cutoff) {
			break
		}
		t.byTime.DeleteMin()
		delete(t.byHash, k.wtxid)
	}
	for t.maxEntries > 0 && len(t.byHash) > t.maxEntries {
		item := t.byTime.Min()
		if item == nil {
			break
		}
		k := item.(entryKey)
		t.byTime.DeleteMin()
		delete(t.byHash, k.wtxid)
	}
}
