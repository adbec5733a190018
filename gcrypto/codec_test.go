package gcrypto

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

type roundTripObject struct {
	id   uuid.UUID
	when time.Time
	blob []byte
	name string
}

func (o *roundTripObject) Fields() []tlv.Record {
	return []tlv.Record{
		UUIDRecord(0, &o.id),
		TimeRecord(1, &o.when),
		BytesRecord(2, &o.blob),
		StringRecord(3, &o.name),
	}
}

func TestEncodeCanonicalIsDeterministic(t *testing.T) {
	t.Parallel()

	obj := &roundTripObject{
		id:   uuid.New(),
		when: time.Unix(1700000000, 0).UTC(),
		blob: []byte{1, 2, 3, 4},
		name: "relay-1",
	}

	first, err := EncodeCanonical(obj)
	require.NoError(t, err)

	second, err := EncodeCanonical(obj)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

// nestedObject holds a composite field (inner) whose wire form is itself a
// canonically-encoded sub-object, the same shape RequestPayload.Fields()
// and friends use for embedded certificates/signed payloads/lists. It
// exists to catch the class of bug where Fields() decodes a composite
// field's bytes into a local variable that is never written back into the
// real struct field.
type nestedObject struct {
	id    uuid.UUID
	inner roundTripObject
}

func (o *nestedObject) Fields() []tlv.Record {
	innerBytes, _ := EncodeCanonical(&o.inner)

	return []tlv.Record{
		UUIDRecord(0, &o.id),
		CanonicalRecord(1, &innerBytes, func(b []byte) error {
			return DecodeCanonical(b, &o.inner)
		}),
	}
}

func TestEncodeDecodeCanonicalRoundTripsNestedField(t *testing.T) {
	t.Parallel()

	obj := &nestedObject{
		id: uuid.New(),
		inner: roundTripObject{
			id:   uuid.New(),
			when: time.Unix(1700000002, 0).UTC(),
			blob: []byte("nested payload"),
			name: "inner-node",
		},
	}

	encoded, err := EncodeCanonical(obj)
	require.NoError(t, err)

	var decoded nestedObject
	require.NoError(t, DecodeCanonical(encoded, &decoded))

	require.Equal(t, obj.id, decoded.id)
	require.Equal(t, obj.inner.id, decoded.inner.id)
	require.True(t, obj.inner.when.Equal(decoded.inner.when))
	require.Equal(t, obj.inner.blob, decoded.inner.blob)
	require.Equal(t, obj.inner.name, decoded.inner.name)
}

func TestEncodeDecodeCanonicalRoundTrips(t *testing.T) {
	t.Parallel()

	obj := &roundTripObject{
		id:   uuid.New(),
		when: time.Unix(1700000001, 0).UTC(),
		blob: []byte("routing instruction payload"),
		name: "node-42",
	}

	encoded, err := EncodeCanonical(obj)
	require.NoError(t, err)

	var decoded roundTripObject
	require.NoError(t, DecodeCanonical(encoded, &decoded))

	require.Equal(t, obj.id, decoded.id)
	require.True(t, obj.when.Equal(decoded.when))
	require.Equal(t, obj.blob, decoded.blob)
	require.Equal(t, obj.name, decoded.name)
}
