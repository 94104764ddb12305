// The record format is based on ToyTLV (MIT licence) written by
// Victor Grishchenko in 2024.
// Original project: https://github.com/learn-decentralized-systems/toytlv

// Package protocol frames zerkalo change events as TLV records for
// the wire. Record types are uppercase A-Z; a lowercase type also
// allows the tiny 1-byte header for bodies up to 9 bytes. Otherwise,
// in either case, bodies up to 255 bytes get the short 2-byte header
// and longer ones the long 5-byte header with a little-endian length.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")

	ErrAddressInvalid    = errors.New("the address invalid")
	ErrAddressDuplicated = errors.New("the address already used")
	ErrAddressUnknown    = errors.New("address unknown")
)

// ProbeHeader reads a record header: the type ('A'-'Z', '0' for tiny,
// '-' for garbage, 0 for too-short input), the header length and the
// body length.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	first := data[0]
	switch {
	case first >= '0' && first <= '9': // tiny
		return '0', 1, int(first - '0')
	case first >= 'a' && first <= 'z': // short
		if len(data) < 2 {
			return 0, 0, 0
		}
		return first - CaseBit, 2, int(data[1])
	case first >= 'A' && first <= 'Z': // long
		if len(data) < 5 {
			return 0, 0, 0
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			return '-', 0, 0
		}
		return first, 5, int(bl)
	default:
		return '-', 0, 0
	}
}

// Split consumes complete records from a buffer, leaving any
// incomplete tail in place.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hlen, blen := ProbeHeader(data.Bytes())
		if lit == '-' {
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return
		}
		if lit == 0 || hlen+blen > data.Len() {
			return // incomplete, wait for more
		}
		record := make([]byte, hlen+blen)
		if _, err = data.Read(record); err != nil {
			return
		}
		recs = append(recs, record)
	}
	return
}

// AppendHeader appends a record header, picking the most compact
// format the type case allows.
func AppendHeader(into []byte, lit byte, bodylen int) []byte {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		return append(into, byte('0'+bodylen))
	}
	if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		into = append(into, biglit)
		return binary.LittleEndian.AppendUint32(into, uint32(bodylen))
	}
	return append(into, lit|CaseBit, byte(bodylen))
}

// Take extracts the body of a record of the given type. Returns a nil
// body with the original data when the record is incomplete, a nil
// rest on a type mismatch.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:]
}

// TakeAny extracts whatever record comes first.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = data[0] &^ CaseBit
	body, rest = Take(lit, data)
	return
}

// Lit reports the canonical type of a record.
func Lit(rec []byte) byte {
	if len(rec) == 0 {
		return '-'
	}
	b := rec[0]
	switch {
	case b >= 'a' && b <= 'z':
		return b - CaseBit
	case b >= 'A' && b <= 'Z':
		return b
	case b >= '0' && b <= '9':
		return '0'
	default:
		return '-'
	}
}

func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Append appends a complete record to the buffer.
func Append(into []byte, lit byte, body ...[]byte) []byte {
	into = AppendHeader(into, lit, TotalLen(body))
	for _, b := range body {
		into = append(into, b...)
	}
	return into
}

// Record builds a complete record.
func Record(lit byte, body ...[]byte) []byte {
	return Append(make([]byte, 0, TotalLen(body)+5), lit, body...)
}

// TinyRecord builds a record with the compact encodings enabled.
func TinyRecord(lit byte, body []byte) []byte {
	return Record(lit|CaseBit, body)
}

// OpenHeader starts a streamed record: the length field is left blank
// for CloseHeader to fill once the body is complete.
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &= ^CaseBit
	if lit < 'A' || lit > 'Z' {
		panic("TLV record type is A..Z")
	}
	res = append(buf, lit, 0, 0, 0, 0)
	return len(res), res
}

// CloseHeader finalizes a record started with OpenHeader.
func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic(fmt.Sprintf("bad TLV bookmark %d", bookmark))
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}

// ZipUint64 encodes an integer little-endian with trailing zero bytes
// trimmed; zero is the empty slice.
func ZipUint64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	n := 8
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}

// UnzipUint64 reverses ZipUint64.
func UnzipUint64(zip []byte) (v uint64) {
	var b [8]byte
	copy(b[:], zip)
	return binary.LittleEndian.Uint64(b[:])
}
