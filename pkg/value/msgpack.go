package value

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeMsgpack writes v as a two element array [kind, payload] so the variant
// survives the round trip (plain msgpack would collapse small ints and floats).
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindString:
		return enc.EncodeString(v.s)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindBool:
		return enc.EncodeBool(v.b)
	default:
		return enc.EncodeNil()
	}
}

// DecodeMsgpack reads the form written by EncodeMsgpack.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("value: expected 2 element array, got %d", n)
	}
	k, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	switch Kind(k) {
	case KindString:
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		*v = String(s)
	case KindInt:
		i, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		*v = Int(i)
	case KindFloat:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*v = Float(f)
	case KindBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		*v = Bool(b)
	case KindNull:
		if err := dec.DecodeNil(); err != nil {
			return err
		}
		*v = Null()
	default:
		return fmt.Errorf("value: unknown kind %d", k)
	}
	return nil
}
