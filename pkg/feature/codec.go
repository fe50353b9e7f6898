package feature

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/odvcencio/geogot/pkg/object"
)

// Value tags inside an encoded feature.
const (
	tagNull   byte = 0
	tagBool   byte = 1
	tagInt    byte = 2
	tagFloat  byte = 3
	tagString byte = 4
	tagBytes  byte = 5
)

// maxEncodedLen bounds any length prefix read from a feature payload.
const maxEncodedLen = 1 << 28

// Codec encodes *Feature records. Property names are written in ascending
// order so equal features always produce equal bytes (and equal ids).
//
// Layout: [propCount uvarint] then per property [name string][tag][value],
// then [geometryType byte (0 = none)][coordCount uvarint][x,y float64 BE]*.
type Codec struct{}

var _ object.RecordCodec = Codec{}

func (Codec) WriteRecord(rec object.Record, w io.Writer) error {
	f, ok := rec.(*Feature)
	if !ok {
		return fmt.Errorf("feature codec: unsupported record %T", rec)
	}
	buf, err := Marshal(f)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func (Codec) ReadRecord(id object.ID, r io.Reader) (object.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", id, err)
	}
	f, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", id, err)
	}
	f.ID = id
	return f, nil
}

// Marshal returns the canonical encoding of f without the object type tag.
func Marshal(f *Feature) ([]byte, error) {
	var buf []byte
	names := f.Names()
	buf = binary.AppendUvarint(buf, uint64(len(names)))
	for _, name := range names {
		buf = appendString(buf, name)
		v, err := normalize(f.Properties[name])
		if err != nil {
			return nil, fmt.Errorf("feature property %q: %w", name, err)
		}
		switch x := v.(type) {
		case nil:
			buf = append(buf, tagNull)
		case bool:
			b := byte(0)
			if x {
				b = 1
			}
			buf = append(buf, tagBool, b)
		case int64:
			buf = append(buf, tagInt)
			buf = binary.AppendVarint(buf, x)
		case float64:
			buf = append(buf, tagFloat)
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(x))
		case string:
			buf = append(buf, tagString)
			buf = appendString(buf, x)
		case []byte:
			buf = append(buf, tagBytes)
			buf = binary.AppendUvarint(buf, uint64(len(x)))
			buf = append(buf, x...)
		}
	}
	if f.Geometry == nil {
		return append(buf, 0), nil
	}
	switch f.Geometry.Type {
	case GeometryPoint, GeometryLineString, GeometryPolygon:
	default:
		return nil, fmt.Errorf("feature geometry: unknown type %d", f.Geometry.Type)
	}
	buf = append(buf, byte(f.Geometry.Type))
	buf = binary.AppendUvarint(buf, uint64(len(f.Geometry.Coords)))
	for _, c := range f.Geometry.Coords {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.X))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Y))
	}
	return buf, nil
}

var errTruncated = errors.New("truncated feature payload")

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(data []byte) (*Feature, error) {
	r := reader{buf: data}
	f := New()
	count := r.uvarint()
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("decode feature: property count %d exceeds payload", count)
	}
	prev := ""
	for i := uint64(0); i < count && r.err == nil; i++ {
		name := r.string()
		if i > 0 && name <= prev {
			return nil, fmt.Errorf("decode feature: property %q out of order", name)
		}
		prev = name
		var v any
		switch tag := r.byte(); tag {
		case tagNull:
		case tagBool:
			v = r.byte() != 0
		case tagInt:
			v = r.varint()
		case tagFloat:
			v = math.Float64frombits(r.uint64())
		case tagString:
			v = r.string()
		case tagBytes:
			v = append([]byte(nil), r.bytes()...)
		default:
			if r.err == nil {
				return nil, fmt.Errorf("decode feature: unknown value tag %d", tag)
			}
		}
		f.Properties[name] = v
	}
	gt := GeometryType(r.byte())
	if r.err == nil && gt != 0 {
		n := r.uvarint()
		if n > uint64(r.remaining()/16) {
			return nil, fmt.Errorf("decode feature: %w", errTruncated)
		}
		g := &Geometry{Type: gt, Coords: make([]Coord, n)}
		for i := range g.Coords {
			g.Coords[i] = Coord{
				X: math.Float64frombits(r.uint64()),
				Y: math.Float64frombits(r.uint64()),
			}
		}
		f.Geometry = g
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode feature: %w", r.err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("decode feature: %d trailing bytes", r.remaining())
	}
	return f, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// reader latches the first error; later reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.err = errTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.err = errTruncated
		return 0
	}
	r.off += n
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.err = errTruncated
		return 0
	}
	r.off += n
	return v
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) bytes() []byte {
	n := r.uvarint()
	if n > maxEncodedLen {
		if r.err == nil {
			r.err = fmt.Errorf("length %d too large", n)
		}
		return nil
	}
	return r.take(int(n))
}

func (r *reader) string() string {
	return string(r.bytes())
}
