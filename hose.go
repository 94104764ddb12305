package zerkalo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/drpcorg/zerkalo/protocol"
	"github.com/drpcorg/zerkalo/utils"
	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

const (
	EventHoseQueueLimit = 1 << 16
	EventHoseTimeLimit  = time.Second
	EventHoseBatchSize  = 1 << 16
)

// hoseSet fans committed events out to wire queues, one per
// connection. A hose that fails to keep up is dropped; its remote end
// will come back for a fresh snapshot.
type hoseSet struct {
	lock sync.Mutex
	out  map[string]protocol.DrainCloser
}

func newHoseSet() *hoseSet {
	return &hoseSet{out: make(map[string]protocol.DrainCloser)}
}

func (h *hoseSet) add(name string, q protocol.DrainCloser) {
	h.lock.Lock()
	old := h.out[name]
	h.out[name] = q
	h.lock.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (h *hoseSet) remove(name string) error {
	h.lock.Lock()
	q := h.out[name]
	delete(h.out, name)
	h.lock.Unlock()
	if q == nil {
		return protocol.ErrAddressUnknown
	}
	return q.Close()
}

func (h *hoseSet) broadcast(ev Event) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.out) == 0 {
		return
	}
	rec, err := EventToPacket(ev)
	if err != nil {
		return
	}
	for name, hose := range h.out {
		if err := hose.Drain(context.Background(), protocol.Records{rec}); err != nil {
			delete(h.out, name)
			_ = hose.Close()
		}
	}
}

// EventToPacket frames a change event for the wire.
func EventToPacket(ev Event) ([]byte, error) {
	value, err := json.Marshal(ev.Entry.Value)
	if err != nil {
		return nil, err
	}
	return protocol.EventPacket(ev.LSN, byte(ev.Entry.Op), ev.Entry.Path, value), nil
}

// PacketToEvent unframes a change event.
func PacketToEvent(rec []byte) (ev Event, err error) {
	lsn, op, path, value, err := protocol.ParseEventPacket(rec)
	if err != nil {
		return ev, err
	}
	if op != byte(OpSet) && op != byte(OpDelete) {
		return ev, fmt.Errorf("%w: op %q", zerkalo_errors.ErrMalformedEntry, op)
	}
	var plain any
	if err = json.Unmarshal(value, &plain); err != nil {
		return ev, fmt.Errorf("%w: %v", zerkalo_errors.ErrMalformedEntry, err)
	}
	return Event{
		LSN:   lsn,
		Entry: Entry{Op: Op(op), Path: path, Value: plain},
	}, nil
}

// AddEventHose taps the document's committed events as wire packets.
// The returned feed yields them in append order.
func AddEventHose(v *View, name string) (protocol.FeedCloser, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	q := utils.NewFDQueue[protocol.Records](EventHoseQueueLimit, EventHoseTimeLimit, EventHoseBatchSize)
	d.hoses.add(name, q)
	return q, nil
}

// RemoveEventHose closes and removes a previously added hose.
func RemoveEventHose(v *View, name string) error {
	d, err := docOf(v)
	if err != nil {
		return err
	}
	return d.hoses.remove(name)
}
