package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVFormats(t *testing.T) {
	tiny := Record('t', []byte("tiny"))
	assert.Equal(t, []byte("4tiny"), tiny)

	short := Record('S', []byte("short"))
	assert.Equal(t, []byte{'s', 5, 's', 'h', 'o', 'r', 't'}, short)

	long := Record('L', make([]byte, 300))
	assert.Equal(t, byte('L'), long[0])
	assert.Equal(t, 305, len(long))
}

func TestTLVTake(t *testing.T) {
	rec := Record('A', []byte("body"))
	body, rest := Take('A', rec)
	assert.Equal(t, []byte("body"), body)
	assert.Equal(t, 0, len(rest))

	body, rest = Take('B', rec)
	assert.Nil(t, body)
	assert.Nil(t, rest)

	lit, body, _ := TakeAny(rec)
	assert.Equal(t, byte('A'), lit)
	assert.Equal(t, []byte("body"), body)
}

func TestTLVSplit(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Record('A', []byte("one")))
	buf.Write(Record('B', []byte("two")))
	incomplete := Record('C', make([]byte, 100))
	buf.Write(incomplete[:50])

	recs, err := Split(&buf)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(recs))
	assert.Equal(t, byte('A'), Lit(recs[0]))
	assert.Equal(t, byte('B'), Lit(recs[1]))
	assert.Equal(t, 50, buf.Len())
}

func TestTLVOpenCloseHeader(t *testing.T) {
	bookmark, buf := OpenHeader(nil, 'X')
	buf = append(buf, []byte("streamed body")...)
	CloseHeader(buf, bookmark)

	body, rest := Take('X', buf)
	assert.Equal(t, []byte("streamed body"), body)
	assert.Equal(t, 0, len(rest))
}

func TestZipUint64(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 256, 1 << 20, 1<<63 + 42} {
		assert.Equal(t, v, UnzipUint64(ZipUint64(v)))
	}
	assert.Equal(t, 0, len(ZipUint64(0)))
	assert.Equal(t, 1, len(ZipUint64(200)))
}

func TestEventPacket(t *testing.T) {
	rec := EventPacket(7, 'S', []string{"a", "length"}, []byte("42"))
	lsn, op, path, value, err := ParseEventPacket(rec)
	assert.Nil(t, err)
	assert.Equal(t, int64(7), lsn)
	assert.Equal(t, byte('S'), op)
	assert.Equal(t, []string{"a", "length"}, path)
	assert.Equal(t, []byte("42"), value)
}

func TestEventPacketEmptyPath(t *testing.T) {
	rec := EventPacket(0, 'D', nil, []byte("null"))
	lsn, op, path, value, err := ParseEventPacket(rec)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), lsn)
	assert.Equal(t, byte('D'), op)
	assert.Equal(t, 0, len(path))
	assert.Equal(t, []byte("null"), value)
}

func TestEventPacketBad(t *testing.T) {
	_, _, _, _, err := ParseEventPacket([]byte("garbage"))
	assert.ErrorIs(t, err, ErrBadEventPacket)

	_, _, _, _, err = ParseEventPacket(Record('E', []byte("inner garbage")))
	assert.ErrorIs(t, err, ErrBadEventPacket)
}

func TestSnapshotPacket(t *testing.T) {
	rec := SnapshotPacket([]byte(`{"a":1}`))
	body, err := ParseSnapshotPacket(rec)
	assert.Nil(t, err)
	assert.Equal(t, []byte(`{"a":1}`), body)

	_, err = ParseSnapshotPacket([]byte("nope"))
	assert.ErrorIs(t, err, ErrBadSnapshotPacket)
}
