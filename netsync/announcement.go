package netsync

import (
	"bytes"
	"time"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/google/btree"
)

// announcement is the immutable (hash, timestamp) pair a peer offering a
// transaction is remembered by.  The meaning of timestamp depends on which
// of a peer's two ordered sets currently holds it: in the announced set it
// is the next eligible request time, in the requested set it is the
// request's expiry.
type announcement struct {
	hash      chainhash.Hash
	timestamp time.Time
}

// announcementKey is the lightweight, ordered-set-only representation of an
// announcement, carrying just enough to sort and to find its way back to
// the canonical value stored in a peerState's byHash map.  Ties are broken
// by hash so that iteration order is total and deterministic, per the
// scheduler's ordering guarantees.
type announcementKey struct {
	when time.Time
	hash chainhash.Hash
}

// Less implements btree.Item.
func (k announcementKey) Less(than btree.Item) bool {
	other := than.(announcementKey)
	if !k.when.Equal(other.when) {
		return k.when.Before(other.when)
	}
	return bytes.Compare(k.hash[:], other.hash[:]) < 0
}

func keyOf(a announcement) announcementKey {
	return announcementKey{when: a.timestamp, hash: a.hash}
}
