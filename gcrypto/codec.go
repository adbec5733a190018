package gcrypto

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/tlv"
)

// Encodable is implemented by any signed/encrypted payload type. Fields
// returns the object's TLV records in strictly increasing type order, the
// same discipline lnwire/update_add_htlc.go and record/blinded_data.go use
// for their wire messages. This is the "canonical encoding" spec.md §4.1
// requires: deterministic, and stable across process runs because it only
// depends on the field values, never on map/slice iteration order.
type Encodable interface {
	Fields() []tlv.Record
}

// EncodeCanonical serializes obj's fields into a deterministic TLV stream.
func EncodeCanonical(obj Encodable) ([]byte, error) {
	stream, err := tlv.NewStream(obj.Fields()...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeCanonical parses a TLV stream produced by EncodeCanonical into the
// value pointers backing obj's fields.
func DecodeCanonical(data []byte, obj Encodable) error {
	stream, err := tlv.NewStream(obj.Fields()...)
	if err != nil {
		return err
	}

	return stream.Decode(bytes.NewReader(data))
}

// The following helpers build tlv.Record values for the field types used
// repeatedly across gossip's frame model (UUIDs, timestamps, raw byte
// blobs) that tlv.MakePrimitiveRecord doesn't natively cover.

// UUIDRecord returns a fixed 16-byte TLV record for a uuid.UUID field.
func UUIDRecord(typ tlv.Type, id *uuid.UUID) tlv.Record {
	return tlv.MakeDynamicRecord(
		typ, id, func() uint64 { return 16 },
		func(w io.Writer, val interface{}, _ *[8]byte) error {
			u := val.(*uuid.UUID)
			_, err := w.Write(u[:])
			return err
		},
		func(r io.Reader, val interface{}, _ *[8]byte, l uint64) error {
			u := val.(*uuid.UUID)
			_, err := io.ReadFull(r, u[:])
			return err
		},
	)
}

// TimeRecord returns an 8-byte unix-nano TLV record for a time.Time field.
func TimeRecord(typ tlv.Type, t *time.Time) tlv.Record {
	return tlv.MakeDynamicRecord(
		typ, t, func() uint64 { return 8 },
		func(w io.Writer, val interface{}, buf *[8]byte) error {
			tm := val.(*time.Time)
			binary.BigEndian.PutUint64(buf[:], uint64(tm.UnixNano()))
			_, err := w.Write(buf[:])
			return err
		},
		func(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
			tm := val.(*time.Time)
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return err
			}
			*tm = time.Unix(0, int64(binary.BigEndian.Uint64(buf[:])))
			return nil
		},
	)
}

// BytesRecord returns a variable-length byte-slice TLV record.
func BytesRecord(typ tlv.Type, b *[]byte) tlv.Record {
	return tlv.MakeDynamicRecord(
		typ, b, func() uint64 { return uint64(len(*b)) },
		tlv.EVarBytes, tlv.DVarBytes,
	)
}

// CanonicalRecord returns a variable-length TLV record for a field whose
// wire form is itself a canonically-encoded sub-object (a nested
// Encodable, a signed payload, a list) rather than a raw byte slice. raw
// must already hold the field's encoded bytes for the encode side; decode
// is called with the bytes read back off the wire and is responsible for
// parsing them into the real struct field DecodeCanonical is populating —
// unlike BytesRecord, whose single pointer serves both directions, a
// composite field needs its own parse step to land the result anywhere but
// a bare []byte.
func CanonicalRecord(typ tlv.Type, raw *[]byte, decode func([]byte) error) tlv.Record {
	return tlv.MakeDynamicRecord(
		typ, raw, func() uint64 { return uint64(len(*raw)) },
		tlv.EVarBytes,
		func(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
			var b []byte
			if err := tlv.DVarBytes(r, &b, buf, l); err != nil {
				return err
			}
			return decode(b)
		},
	)
}

// StringRecord returns a variable-length string TLV record.
func StringRecord(typ tlv.Type, s *string) tlv.Record {
	return tlv.MakeDynamicRecord(
		typ, s, func() uint64 { return uint64(len(*s)) },
		func(w io.Writer, val interface{}, buf *[8]byte) error {
			str := val.(*string)
			b := []byte(*str)
			return tlv.EVarBytes(w, &b, buf)
		},
		func(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
			str := val.(*string)
			var b []byte
			if err := tlv.DVarBytes(r, &b, buf, l); err != nil {
				return err
			}
			*str = string(b)
			return nil
		},
	)
}
