package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Node tags inside an encoded tree.
const (
	nodeEnd    byte = 0x00
	nodeRef    byte = 0x01
	nodeBucket byte = 0x02
)

// noBoundsBits is the canonical quiet NaN written in place of a bounding box.
const noBoundsBits uint64 = 0x7ff8000000000000

// RecordCodec is the external collaborator that owns record (feature)
// payloads. The codec frames its bytes with the feature tag and otherwise
// treats them as opaque.
type RecordCodec interface {
	WriteRecord(rec Record, w io.Writer) error
	ReadRecord(id ID, r io.Reader) (Record, error)
}

// Codec encodes and decodes objects in their canonical binary form. Identical
// content always produces identical bytes, which is what makes ids stable.
type Codec struct {
	records RecordCodec
	crs     *crsCache
}

// CodecOption configures a Codec.
type CodecOption func(*codecConfig)

type codecConfig struct {
	resolver CRSResolver
	cacheLen int
}

// WithCRSResolver replaces the default AuthorityResolver.
func WithCRSResolver(r CRSResolver) CodecOption {
	return func(c *codecConfig) { c.resolver = r }
}

// WithCRSCacheSize overrides CRSCacheSize.
func WithCRSCacheSize(n int) CodecOption {
	return func(c *codecConfig) { c.cacheLen = n }
}

// NewCodec returns a codec delegating record payloads to records, which may
// be nil when only trees and commits are handled.
func NewCodec(records RecordCodec, opts ...CodecOption) *Codec {
	cfg := codecConfig{cacheLen: CRSCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Codec{
		records: records,
		crs:     newCRSCache(cfg.resolver, cfg.cacheLen),
	}
}

// ResolveCRS resolves a CRS identifier through the codec's bounded cache.
func (c *Codec) ResolveCRS(identifier string) (CRS, error) {
	return c.crs.resolve(identifier)
}

// TypeOf returns the object type encoded in data's leading tag.
func TypeOf(data []byte) (Type, error) {
	if len(data) == 0 {
		return 0, corruptf("empty object")
	}
	t := Type(data[0])
	if !t.Valid() {
		return 0, corruptf("unknown type tag 0x%02x", data[0])
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Trees
// ---------------------------------------------------------------------------

// EncodeTree serializes a normalized tree node:
//
//	[TREE][size uvarint]
//	  ( [BUCKET][index uvarint][childId 20B][childSize uvarint]
//	  | [REF][type][name][objectId 20B][bbox][crs] )*
//	[END]
//
// Refs must be strictly ascending by name and buckets strictly ascending by
// index; anything else means the tree was not normalized.
func (c *Codec) EncodeTree(n *TreeNode) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.WriteTree(n, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTree is EncodeTree streaming to w.
func (c *Codec) WriteTree(n *TreeNode, w io.Writer) error {
	if len(n.Refs) > 0 && len(n.Buckets) > 0 {
		return fmt.Errorf("encode tree: node has both refs and buckets")
	}
	e := encoder{}
	e.byte(byte(TypeTree))
	e.uvarint(n.Size)

	var sum uint64
	for i, b := range n.Buckets {
		if i > 0 && b.Index <= n.Buckets[i-1].Index {
			return fmt.Errorf("encode tree: buckets not in ascending order at %d", b.Index)
		}
		if b.Index < 0 {
			return fmt.Errorf("encode tree: negative bucket index %d", b.Index)
		}
		e.byte(nodeBucket)
		e.uvarint(uint64(b.Index))
		e.id(b.ID)
		e.uvarint(b.Size)
		sum += b.Size
	}
	for i, r := range n.Refs {
		if i > 0 && r.Name <= n.Refs[i-1].Name {
			return fmt.Errorf("encode tree: refs not in ascending order at %q", r.Name)
		}
		e.byte(nodeRef)
		writeRef(&e, r)
	}
	e.byte(nodeEnd)

	if len(n.Buckets) > 0 && sum != n.Size {
		return fmt.Errorf("encode tree: size %d does not match bucket sizes %d", n.Size, sum)
	}
	if len(n.Buckets) == 0 && uint64(len(n.Refs)) != n.Size {
		return fmt.Errorf("encode tree: size %d does not match %d refs", n.Size, len(n.Refs))
	}
	_, err := w.Write(e.buf)
	return err
}

// DecodeTree parses an encoded tree node. Bucket children are returned as
// references only; loading them is the caller's business.
func (c *Codec) DecodeTree(data []byte) (*TreeNode, error) {
	d := decoder{buf: data}
	if t := Type(d.byte()); t != TypeTree {
		return nil, corruptf("decode tree: type tag %s", t)
	}
	n := &TreeNode{Size: d.uvarint()}
	var sum uint64
	for d.err == nil {
		tag := d.byte()
		switch tag {
		case nodeEnd:
			if d.err != nil {
				return nil, d.err
			}
			if d.remaining() != 0 {
				return nil, corruptf("decode tree: %d trailing bytes", d.remaining())
			}
			if len(n.Buckets) > 0 && len(n.Refs) > 0 {
				return nil, corruptf("decode tree: mixed refs and buckets")
			}
			if len(n.Buckets) > 0 && sum != n.Size {
				return nil, corruptf("decode tree: size %d, buckets sum %d", n.Size, sum)
			}
			if len(n.Buckets) == 0 && uint64(len(n.Refs)) != n.Size {
				return nil, corruptf("decode tree: size %d, %d refs", n.Size, len(n.Refs))
			}
			return n, nil
		case nodeBucket:
			b := Bucket{Index: int(d.uvarint()), ID: d.id(), Size: d.uvarint()}
			if k := len(n.Buckets); k > 0 && b.Index <= n.Buckets[k-1].Index {
				return nil, corruptf("decode tree: bucket %d out of order", b.Index)
			}
			sum += b.Size
			n.Buckets = append(n.Buckets, b)
		case nodeRef:
			r := readRef(&d)
			if k := len(n.Refs); k > 0 && d.err == nil && r.Name <= n.Refs[k-1].Name {
				return nil, corruptf("decode tree: ref %q out of order", r.Name)
			}
			n.Refs = append(n.Refs, r)
		default:
			if d.err == nil {
				return nil, corruptf("decode tree: unknown node tag 0x%02x", tag)
			}
		}
	}
	return nil, d.err
}

// EncodeRef serializes a single ref (without the node tag). Exposed for
// callers that persist refs outside trees.
func (c *Codec) EncodeRef(r Ref) []byte {
	e := encoder{}
	writeRef(&e, r)
	return e.buf
}

// DecodeRef parses EncodeRef output.
func (c *Codec) DecodeRef(data []byte) (Ref, error) {
	d := decoder{buf: data}
	r := readRef(&d)
	if d.err != nil {
		return Ref{}, d.err
	}
	if d.remaining() != 0 {
		return Ref{}, corruptf("decode ref: %d trailing bytes", d.remaining())
	}
	return r, nil
}

func writeRef(e *encoder, r Ref) {
	e.byte(byte(r.Type))
	e.string(r.Name)
	e.id(r.ID)
	if r.Bounds == nil || math.IsNaN(r.Bounds.MinX) {
		e.buf = binary.BigEndian.AppendUint64(e.buf, noBoundsBits)
	} else {
		e.float64(r.Bounds.MinX)
		e.float64(r.Bounds.MaxX)
		e.float64(r.Bounds.MinY)
		e.float64(r.Bounds.MaxY)
	}
	e.string(r.CRS)
}

func readRef(d *decoder) Ref {
	r := Ref{Type: Type(d.byte())}
	r.Name = d.string()
	r.ID = d.id()
	minX := d.float64()
	if !math.IsNaN(minX) {
		r.Bounds = &Bounds{MinX: minX, MaxX: d.float64(), MinY: d.float64(), MaxY: d.float64()}
	}
	r.CRS = d.string()
	if d.err == nil && !r.Type.Valid() {
		d.err = corruptf("decode ref %q: unknown ref type 0x%02x", r.Name, byte(r.Type))
	}
	return r
}

// ---------------------------------------------------------------------------
// Commits
// ---------------------------------------------------------------------------

// EncodeCommit serializes a commit:
//
//	[COMMIT][treeId 20B][parentCount uvarint][parentId 20B]*
//	[author][committer][timestampMillis int64][message]
//
// A root commit is written with a single null parent so that every stored
// commit names at least one parent entry.
func (c *Codec) EncodeCommit(cm *Commit) []byte {
	e := encoder{}
	e.byte(byte(TypeCommit))
	e.id(cm.TreeID)
	if len(cm.Parents) == 0 {
		e.uvarint(1)
		e.id(NullID)
	} else {
		e.uvarint(uint64(len(cm.Parents)))
		for _, p := range cm.Parents {
			e.id(p)
		}
	}
	e.string(cm.Author)
	e.string(cm.Committer)
	e.int64(cm.Timestamp)
	e.string(cm.Message)
	return e.buf
}

// DecodeCommit parses an encoded commit and stamps it with id. A parent
// count of zero is a commit that lost its ancestry and is reported as
// corrupt.
func (c *Codec) DecodeCommit(id ID, data []byte) (*Commit, error) {
	d := decoder{buf: data}
	if t := Type(d.byte()); d.err == nil && t != TypeCommit {
		return nil, corruptf("decode commit %s: type tag %s", id, t)
	}
	cm := &Commit{ID: id, TreeID: d.id()}
	count := d.uvarint()
	if d.err == nil && count == 0 {
		return nil, corruptf("decode commit %s: non-root commit without parents", id)
	}
	if d.err == nil && count > uint64(d.remaining()/IDSize) {
		return nil, corruptf("decode commit %s: parent count %d exceeds payload", id, count)
	}
	for i := uint64(0); i < count && d.err == nil; i++ {
		p := d.id()
		if p.IsNull() {
			if count != 1 {
				return nil, corruptf("decode commit %s: null parent among %d", id, count)
			}
			continue
		}
		cm.Parents = append(cm.Parents, p)
	}
	cm.Author = d.string()
	cm.Committer = d.string()
	cm.Timestamp = d.int64()
	cm.Message = d.string()
	if d.err != nil {
		return nil, fmt.Errorf("decode commit %s: %w", id, d.err)
	}
	if d.remaining() != 0 {
		return nil, corruptf("decode commit %s: %d trailing bytes", id, d.remaining())
	}
	return cm, nil
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// EncodeRecord frames the record collaborator's bytes with the feature tag.
func (c *Codec) EncodeRecord(rec Record) ([]byte, error) {
	if c.records == nil {
		return nil, fmt.Errorf("encode record: codec has no record codec")
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(TypeFeature))
	if err := c.records.WriteRecord(rec, &buf); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecord hands the payload after the tag to the record collaborator.
func (c *Codec) DecodeRecord(id ID, data []byte) (Record, error) {
	if c.records == nil {
		return nil, fmt.Errorf("decode record %s: codec has no record codec", id)
	}
	if len(data) == 0 || Type(data[0]) != TypeFeature {
		return nil, corruptf("decode record %s: not a feature", id)
	}
	rec, err := c.records.ReadRecord(id, bytes.NewReader(data[1:]))
	if err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}

// ---------------------------------------------------------------------------
// Primitive encoding
// ---------------------------------------------------------------------------

type encoder struct {
	buf []byte
}

func (e *encoder) byte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) uvarint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }

func (e *encoder) id(id ID) { e.buf = append(e.buf, id[:]...) }

func (e *encoder) int64(v int64) { e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v)) }

func (e *encoder) float64(v float64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *encoder) string(s string) {
	e.uvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// decoder reads primitives and latches the first error; later reads return
// zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.remaining() < n {
		d.err = corruptf("truncated: need %d bytes at offset %d, have %d", n, d.off, d.remaining())
		return false
	}
	return true
}

func (d *decoder) byte() byte {
	if !d.need(1) {
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.err = corruptf("bad varint at offset %d", d.off)
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) id() ID {
	if !d.need(IDSize) {
		return NullID
	}
	var id ID
	copy(id[:], d.buf[d.off:d.off+IDSize])
	d.off += IDSize
	return id
}

func (d *decoder) int64() int64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return int64(v)
}

func (d *decoder) float64() float64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return math.Float64frombits(v)
}

func (d *decoder) string() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if n > uint64(d.remaining()) {
		d.err = corruptf("string length %d exceeds remaining %d", n, d.remaining())
		return ""
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s
}
