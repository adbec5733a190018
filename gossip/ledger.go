package gossip

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/sweetgossip/sweetgossip/gcrypto"
	"github.com/sweetgossip/sweetgossip/preimage"
)

// hopTupleKey identifies a (account, amount, public_key) routing tuple
// (spec.md §4.3).
type hopTupleKey string

func tupleKey(inst RoutingPaymentInstruction) hopTupleKey {
	return hopTupleKey(fmt.Sprintf(
		"%s:%d:%s", inst.Account, inst.Amount,
		hex.EncodeToString(inst.PublicKey.SerializeCompressed()),
	))
}

// preimageLedger is a replier's per-topic, per-hop-tuple symmetric key
// store. The same value serves as the hop's payment-hash preimage and the
// symmetric key that encrypted the reply message for that hop (spec.md
// §4.3's central binding).
type preimageLedger struct {
	mu      sync.Mutex
	byTopic map[string]map[hopTupleKey]preimage.Preimage
}

func newPreimageLedger() *preimageLedger {
	return &preimageLedger{
		byTopic: make(map[string]map[hopTupleKey]preimage.Preimage),
	}
}

// preimageFor lazily derives (and remembers) a fresh symmetric key for
// (topicID, inst), generating it with a secure RNG exactly once per tuple
// (spec.md §4.3: "MUST NOT be reused across different hop tuples").
func (l *preimageLedger) preimageFor(topicID string,
	inst RoutingPaymentInstruction) (preimage.Preimage, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	hops, ok := l.byTopic[topicID]
	if !ok {
		hops = make(map[hopTupleKey]preimage.Preimage)
		l.byTopic[topicID] = hops
	}

	key := tupleKey(inst)
	if p, ok := hops[key]; ok {
		return p, nil
	}

	p, err := gcrypto.GenerateSymmetricKey()
	if err != nil {
		return preimage.Preimage{}, fmt.Errorf("derive hop preimage: %w", err)
	}

	hops[key] = p

	return p, nil
}
