package netsync

import "time"

// Config bundles the tunable parameters that govern per-peer announcement
// bookkeeping and download scheduling.  The zero value is not useful;
// callers should start from DefaultConfig and override only what they need.
type Config struct {
	// MaxPeerTxAnnouncements bounds the number of outstanding
	// announcements (of either kind) a single peer may hold at once.
	MaxPeerTxAnnouncements int

	// MaxPeerTxInFlight bounds the number of simultaneously requested
	// (GETDATA'd but not yet received) transactions per peer.
	MaxPeerTxInFlight int

	// InboundPeerTxDelay is added to the request time of announcements
	// arriving from inbound peers, so outbound announcements of the same
	// transaction are preferred.
	InboundPeerTxDelay time.Duration

	// GetDataTxInterval is how long a GETDATA request is given to
	// complete before the announcement is considered expired.
	GetDataTxInterval time.Duration

	// MaxGetDataRandomDelay upper-bounds the jitter added to a requeued
	// fallback announcement's request time.
	MaxGetDataRandomDelay time.Duration

	// OutboundDelay is added, on top of the primary requester's
	// deadline, to a fallback announcement's request time when the
	// waiting peer is outbound.
	OutboundDelay time.Duration

	// InboundDelay is the inbound-peer equivalent of OutboundDelay.
	InboundDelay time.Duration

	// TxAnnouncementLifetime bounds how long an unrequested announcement
	// may sit in a peer's announced set before it is dropped.
	TxAnnouncementLifetime time.Duration
}

// DefaultConfig returns the tuning defaults from the propagation control
// plane's specification.
func DefaultConfig() Config {
	return Config{
		MaxPeerTxAnnouncements: 5000,
		MaxPeerTxInFlight:      100,
		InboundPeerTxDelay:     2 * time.Second,
		GetDataTxInterval:      60 * time.Second,
		MaxGetDataRandomDelay:  2 * time.Second,
		OutboundDelay:          2 * time.Second,
		InboundDelay:           2 * time.Second,
		TxAnnouncementLifetime: 20 * time.Minute,
	}
}
