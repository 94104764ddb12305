package protocol

import (
	"errors"
	"fmt"
)

// Wire framing of the replica feed. Two packet kinds:
//
//	S( json )                                 snapshot, opens a feed
//	E( l(lsn) o(op) P( k(key)* ) V(json) )    one change event
//
// The op byte is 'S' for SET and 'D' for DELETE, matching the log
// entry model; the value payload is canonical JSON, which the plain
// value domain round-trips by construction.

var (
	ErrBadEventPacket    = errors.New("bad E packet")
	ErrBadSnapshotPacket = errors.New("bad S packet")
)

// AppendEventPacket frames one change event.
func AppendEventPacket(into []byte, lsn int64, op byte, path []string, value []byte) []byte {
	var body []byte
	body = Append(body, 'l', ZipUint64(uint64(lsn)))
	body = Append(body, 'o', []byte{op})
	var pb []byte
	for _, key := range path {
		pb = Append(pb, 'K', []byte(key))
	}
	body = Append(body, 'P', pb)
	body = Append(body, 'V', value)
	return Append(into, 'E', body)
}

// EventPacket frames one change event as a standalone record.
func EventPacket(lsn int64, op byte, path []string, value []byte) []byte {
	return AppendEventPacket(nil, lsn, op, path, value)
}

func takeField(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hlen, blen := ProbeHeader(data)
	if flit == 0 || hlen+blen > len(data) {
		return nil, nil, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	return data[hlen : hlen+blen], data[hlen+blen:], nil
}

// ParseEventPacket unframes a change event.
func ParseEventPacket(rec []byte) (lsn int64, op byte, path []string, value []byte, err error) {
	body, _, err := takeField('E', rec)
	if err != nil {
		return 0, 0, nil, nil, ErrBadEventPacket
	}
	lz, rest, err := takeField('L', body)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%w: no lsn", ErrBadEventPacket)
	}
	lsn = int64(UnzipUint64(lz))
	ob, rest, err := takeField('O', rest)
	if err != nil || len(ob) != 1 {
		return 0, 0, nil, nil, fmt.Errorf("%w: no op", ErrBadEventPacket)
	}
	op = ob[0]
	pb, rest, err := takeField('P', rest)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%w: no path", ErrBadEventPacket)
	}
	for len(pb) > 0 {
		var key []byte
		key, pb, err = takeField('K', pb)
		if err != nil {
			return 0, 0, nil, nil, fmt.Errorf("%w: bad path key", ErrBadEventPacket)
		}
		path = append(path, string(key))
	}
	value, _, err = takeField('V', rest)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%w: no value", ErrBadEventPacket)
	}
	return lsn, op, path, value, nil
}

// SnapshotPacket frames a JSON snapshot.
func SnapshotPacket(snapshot []byte) []byte {
	return Record('S', snapshot)
}

// ParseSnapshotPacket unframes a snapshot.
func ParseSnapshotPacket(rec []byte) ([]byte, error) {
	body, _, err := takeField('S', rec)
	if err != nil {
		return nil, ErrBadSnapshotPacket
	}
	return body, nil
}
