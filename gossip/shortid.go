package gossip

import (
	"github.com/google/uuid"
	"github.com/tv42/zbase32"
)

// shortID renders id's first six bytes as human-speakable zbase32, the
// way lnd renders onion service addresses: easier to read aloud or eyeball
// in a log line than a full hex/dashed UUID, at the cost of no longer
// being collision-free on its own (it's a logging aid, never a key).
func shortID(id uuid.UUID) string {
	return zbase32.EncodeToString(id[:6])
}
