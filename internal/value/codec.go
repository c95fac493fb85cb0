package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Encode produces Strata's stable tagged binary encoding for v, grounded on
// the explicit length-prefixed, little-endian byte packing used throughout
// internal/wal's record format rather than a reflection-based codec: a
// fixed wire shape is what lets WAL records and snapshot sections be framed
// and CRC-checked without touching Go's encoding machinery.
func Encode(v Value) []byte {
	buf := make([]byte, 0, 16)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	if v == nil {
		return append(buf, byte(KindNull))
	}
	switch val := v.(type) {
	case Null:
		return append(buf, byte(KindNull))
	case Bool:
		b := byte(0)
		if val {
			b = 1
		}
		return append(buf, byte(KindBool), b)
	case Int:
		buf = append(buf, byte(KindInt))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(val))
		return append(buf, tmp[:]...)
	case Float:
		buf = append(buf, byte(KindFloat))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(float64(val)))
		return append(buf, tmp[:]...)
	case String:
		return appendBytesTagged(buf, byte(KindString), []byte(val))
	case Bytes:
		return appendBytesTagged(buf, byte(KindBytes), val)
	case Array:
		buf = append(buf, byte(KindArray))
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(val)))
		buf = append(buf, lenBuf[:]...)
		for _, elem := range val {
			buf = appendValue(buf, elem)
		}
		return buf
	case Object:
		buf = append(buf, byte(KindObject))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(keys)))
		buf = append(buf, lenBuf[:]...)
		for _, k := range keys {
			buf = appendBytesTagged(buf, 0, []byte(k))
			buf = appendValue(buf, val[k])
		}
		return buf
	default:
		panic(fmt.Sprintf("value: unknown kind %T", v))
	}
}

func appendBytesTagged(buf []byte, tag byte, data []byte) []byte {
	if tag != 0 {
		buf = append(buf, tag)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

// Decode parses the wire format produced by Encode. It returns the value
// and the number of bytes consumed, so callers can decode a sequence of
// concatenated values (e.g. Object keys) without re-scanning.
func Decode(data []byte) (Value, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("value: empty buffer")
	}
	kind := Kind(data[0])
	switch kind {
	case KindNull:
		return Null{}, 1, nil
	case KindBool:
		if len(data) < 2 {
			return nil, 0, fmt.Errorf("value: truncated bool")
		}
		return Bool(data[1] != 0), 2, nil
	case KindInt:
		if len(data) < 9 {
			return nil, 0, fmt.Errorf("value: truncated int")
		}
		return Int(binary.LittleEndian.Uint64(data[1:9])), 9, nil
	case KindFloat:
		if len(data) < 9 {
			return nil, 0, fmt.Errorf("value: truncated float")
		}
		bits := binary.LittleEndian.Uint64(data[1:9])
		return Float(math.Float64frombits(bits)), 9, nil
	case KindString:
		s, n, err := decodeBytesTagged(data, true)
		if err != nil {
			return nil, 0, err
		}
		return String(s), n, nil
	case KindBytes:
		b, n, err := decodeBytesTagged(data, true)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return Bytes(out), n, nil
	case KindArray:
		if len(data) < 5 {
			return nil, 0, fmt.Errorf("value: truncated array header")
		}
		count := binary.LittleEndian.Uint32(data[1:5])
		offset := 5
		arr := make(Array, 0, count)
		for i := uint32(0); i < count; i++ {
			elem, n, err := Decode(data[offset:])
			if err != nil {
				return nil, 0, err
			}
			arr = append(arr, elem)
			offset += n
		}
		return arr, offset, nil
	case KindObject:
		if len(data) < 5 {
			return nil, 0, fmt.Errorf("value: truncated object header")
		}
		count := binary.LittleEndian.Uint32(data[1:5])
		offset := 5
		obj := make(Object, count)
		for i := uint32(0); i < count; i++ {
			key, n, err := decodeBytesTagged(data[offset:], false)
			if err != nil {
				return nil, 0, err
			}
			offset += n
			val, n2, err := Decode(data[offset:])
			if err != nil {
				return nil, 0, err
			}
			offset += n2
			obj[string(key)] = val
		}
		return obj, offset, nil
	default:
		return nil, 0, fmt.Errorf("value: unknown kind tag %d", kind)
	}
}

func decodeBytesTagged(data []byte, tagged bool) ([]byte, int, error) {
	offset := 0
	if tagged {
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("value: truncated tag")
		}
		offset = 1
	}
	if len(data) < offset+4 {
		return nil, 0, fmt.Errorf("value: truncated length")
	}
	n := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4
	if len(data) < offset+int(n) {
		return nil, 0, fmt.Errorf("value: truncated payload")
	}
	return data[offset : offset+int(n)], offset + int(n), nil
}
