package zerkalo

import (
	"context"
	"encoding/json"

	"github.com/drpcorg/zerkalo/protocol"
	"github.com/drpcorg/zerkalo/utils"
	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

// SourceFeed serves one connection on the document side: a snapshot
// packet first, then every committed event, in append order. Plug it
// into protocol.Net's install callback.
type SourceFeed struct {
	v    *View
	name string
	q    *utils.FDQueue[protocol.Records]
}

func NewSourceFeed(v *View, name string) (*SourceFeed, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	snap, err := GetSnapshot(v)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	q := utils.NewFDQueue[protocol.Records](EventHoseQueueLimit, EventHoseTimeLimit, EventHoseBatchSize)
	if err := q.Drain(context.Background(), protocol.Records{protocol.SnapshotPacket(raw)}); err != nil {
		return nil, err
	}
	d.hoses.add(name, q)
	return &SourceFeed{v: v, name: name, q: q}, nil
}

func (f *SourceFeed) Feed(ctx context.Context) (protocol.Records, error) {
	return f.q.Feed(ctx)
}

// The source side only talks; anything the peer sends is dropped.
func (f *SourceFeed) Drain(ctx context.Context, recs protocol.Records) error {
	return nil
}

func (f *SourceFeed) Close() error {
	if d, err := docOf(f.v); err == nil {
		_ = d.hoses.remove(f.name)
	}
	return f.q.Close()
}

// ReplicaSink consumes a feed on the replica side: the snapshot
// packet seeds the replica, every event packet advances it. A
// sequence gap surfaces as OutOfSync and kills the connection; the
// caller reconnects for a fresh snapshot.
type ReplicaSink struct {
	log  utils.Logger
	r    *Replica
	done chan struct{}
}

func NewReplicaSink(log utils.Logger) *ReplicaSink {
	return &ReplicaSink{log: log, done: make(chan struct{})}
}

// Replica returns the live replica, nil until the snapshot arrives.
func (s *ReplicaSink) Replica() *Replica {
	return s.r
}

func (s *ReplicaSink) Drain(ctx context.Context, recs protocol.Records) error {
	for _, rec := range recs {
		switch protocol.Lit(rec) {
		case 'S':
			raw, err := protocol.ParseSnapshotPacket(rec)
			if err != nil {
				return err
			}
			var snap any
			if err := json.Unmarshal(raw, &snap); err != nil {
				return err
			}
			r, err := ReplicaFromSnapshot(snap)
			if err != nil {
				return err
			}
			s.r = r
			s.log.Info("feed: replica seeded", "lsn", r.LSN())
		case 'E':
			if s.r == nil {
				return zerkalo_errors.ErrNotReplica
			}
			ev, err := PacketToEvent(rec)
			if err != nil {
				return err
			}
			if err := s.r.Apply(ev); err != nil {
				s.log.Error("feed: apply failed", "lsn", ev.LSN, "err", err)
				// unblock Feed so the write pump ends and the connection closes
				_ = s.Close()
				return err
			}
		default:
			s.log.Warn("feed: unexpected packet", "lit", string(protocol.Lit(rec)))
		}
	}
	return nil
}

// The sink never talks back; Feed blocks until the sink or the
// context is done.
func (s *ReplicaSink) Feed(ctx context.Context) (protocol.Records, error) {
	select {
	case <-ctx.Done():
		return nil, nil
	case <-s.done:
		return nil, utils.ErrClosed
	}
}

func (s *ReplicaSink) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}
