// Package constants collects the fixed tuning values named throughout the
// component design: batch sizes, auth flag bits, and the timeout ladder
// governing listener liveness and token expiry.
package constants

import "time"

const (
	// MemberBatchSize bounds how many members share one MEMBER_ITT/MEMBER_AUTH
	// batch; batch_num = member_count_before_insert / MemberBatchSize.
	MemberBatchSize = 100
	// MessageBatchSize bounds how many messages share one MESSAGE batch;
	// batch_num = seqno / MessageBatchSize.
	MessageBatchSize = 100
)

// Member auth_flags bits.
const (
	MemberFlag uint64 = 1 << 0
	OwnerFlag  uint64 = 1 << 1
)

const (
	// TokenExpirationMs is the lifetime granted to tokens minted over
	// /challenge_auth.
	TokenExpirationMs uint64 = 3_600_000
	// PingTimeout is how long a listener may go without polling before its
	// send_slot is reclaimed for a keepalive push.
	PingTimeout = 30 * time.Second
	// PurgeTimeout is how long a listener may go without polling before it
	// is evicted entirely.
	PurgeTimeout = 60 * time.Second
	// PurgeInterval is how often FanOut's purge sweep runs.
	PurgeInterval = 10 * time.Second
	// TokenPurgeInterval is how often the AuthToken purge sweep runs.
	TokenPurgeInterval = 5 * time.Minute
)
