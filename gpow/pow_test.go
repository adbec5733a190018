package gpow

import (
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// fixedPayload is a minimal gcrypto.Encodable stand-in for BroadcastPayload,
// kept local to avoid an import cycle with gossip.
type fixedPayload struct {
	data []byte
}

func (f *fixedPayload) Fields() []tlv.Record {
	return []tlv.Record{
		tlv.MakeDynamicRecord(0, &f.data,
			func() uint64 { return uint64(len(f.data)) },
			tlv.EVarBytes, tlv.DVarBytes),
	}
}

func TestPowTargetFromComplexityRejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	_, err := PowTargetFromComplexity("unknown-scheme", 4)
	require.Error(t, err)
}

func TestPowTargetFromComplexityMatchesComplexity(t *testing.T) {
	t.Parallel()

	target, err := PowTargetFromComplexity(SchemeSHA256LeadingZeroBits, 6)
	require.NoError(t, err)
	require.Equal(t, Target(6), target)
}

func TestComputeProofValidates(t *testing.T) {
	t.Parallel()

	payload := &fixedPayload{data: []byte("broadcast payload bytes")}

	work := WorkRequest{Scheme: SchemeSHA256LeadingZeroBits, Target: 8}

	proof, err := work.ComputeProof(payload)
	require.NoError(t, err)
	require.True(t, proof.Validate(payload))
}

func TestValidateFailsForWrongScheme(t *testing.T) {
	t.Parallel()

	payload := &fixedPayload{data: []byte("broadcast payload bytes")}

	work := WorkRequest{Scheme: SchemeSHA256LeadingZeroBits, Target: 4}

	proof, err := work.ComputeProof(payload)
	require.NoError(t, err)

	proof.Scheme = "other-scheme"
	require.False(t, proof.Validate(payload))
}

func TestValidateFailsForTamperedPayload(t *testing.T) {
	t.Parallel()

	payload := &fixedPayload{data: []byte("broadcast payload bytes")}

	work := WorkRequest{Scheme: SchemeSHA256LeadingZeroBits, Target: 4}

	proof, err := work.ComputeProof(payload)
	require.NoError(t, err)

	tampered := &fixedPayload{data: []byte("different payload bytes")}
	require.False(t, proof.Validate(tampered))
}
