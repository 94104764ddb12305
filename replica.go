package zerkalo

import (
	"fmt"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

// Replica is a read-only document advanced only by applying change
// events in strict LSN order. It owns its tree and emitter; nothing
// links it to its source except the events the caller relays.
type Replica struct {
	doc *Document
}

// ReplicaFromSnapshot builds a replica from a snapshot value: a
// mapping whose __versioning__ carries a numeric lsn.
func ReplicaFromSnapshot(s any) (*Replica, error) {
	m, ok := s.(map[string]any)
	if !ok || !Assignable(m) {
		return nil, zerkalo_errors.ErrInvalidSnapshot
	}
	vb, ok := m[VersioningField].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: no versioning block", zerkalo_errors.ErrInvalidSnapshot)
	}
	lsn, ok := asInt(vb[lsnField])
	if !ok || lsn < 0 {
		return nil, fmt.Errorf("%w: no lsn", zerkalo_errors.ErrInvalidSnapshot)
	}
	tree := DeepCopy(m).(map[string]any)
	tree[VersioningField] = map[string]any{lsnField: int64(lsn)}
	return &Replica{doc: newDocument(tree, true)}, nil
}

// NewReplica snapshots a document or another replica and builds a
// fresh unlinked replica from the snapshot.
func NewReplica(x any) (*Replica, error) {
	switch t := x.(type) {
	case *Replica:
		if t == nil || t.doc == nil {
			return nil, zerkalo_errors.ErrNotReplica
		}
		return ReplicaFromSnapshot(t.snapshot())
	case *View:
		snap, err := GetSnapshot(t)
		if err != nil {
			return nil, err
		}
		return ReplicaFromSnapshot(snap)
	default:
		return nil, zerkalo_errors.ErrNotManaged
	}
}

// IsReplica reports whether x is a replica or a view over one.
func IsReplica(x any) bool {
	switch t := x.(type) {
	case *Replica:
		return t != nil && t.doc != nil
	case *View:
		if t == nil || t.doc == nil {
			return false
		}
		vb, _ := t.doc.tree[VersioningField].(map[string]any)
		if vb == nil {
			return false
		}
		_, hasLsn := vb[lsnField]
		return hasLsn && t.doc.logSlice() == nil
	default:
		return false
	}
}

// Root returns a read-only view over the replica's tree.
func (r *Replica) Root() *View {
	return &View{doc: r.doc, ro: true}
}

// LSN returns the sequence number of the last applied event.
func (r *Replica) LSN() int64 {
	vb, _ := r.doc.tree[VersioningField].(map[string]any)
	n, _ := asInt(vb[lsnField])
	return int64(n)
}

// Apply advances the replica by one event. The event's LSN must be
// exactly the successor of the replica's; on a gap the replica stays
// where it is and the caller must rebuild from a fresh snapshot.
// Applied events are re-emitted so replicas chain.
func (r *Replica) Apply(ev Event) error {
	if r == nil || r.doc == nil {
		return zerkalo_errors.ErrNotReplica
	}
	expected := r.LSN() + 1
	if ev.LSN != expected {
		stats.outOfSync.Add(1)
		return fmt.Errorf("%w: expected %d, got %d", zerkalo_errors.ErrOutOfSync, expected, ev.LSN)
	}
	if err := ev.Entry.Apply(r.doc.tree); err != nil {
		return err
	}
	r.doc.tree[VersioningField].(map[string]any)[lsnField] = ev.LSN
	stats.applies.Add(1)
	return r.doc.emitter.Emit(ev)
}

// Detach deep-copies the replica's tree without the versioning block.
func (r *Replica) Detach() any {
	if r == nil || r.doc == nil {
		return nil
	}
	detached := DeepCopy(r.doc.tree).(map[string]any)
	delete(detached, VersioningField)
	return detached
}

// EventEmitter returns the replica's own change bus; applied events
// are re-published there for downstream replicas.
func (r *Replica) EventEmitter() (*Emitter, error) {
	if r == nil || r.doc == nil {
		return nil, zerkalo_errors.ErrNotReplica
	}
	return r.doc.emitter, nil
}

func (r *Replica) snapshot() map[string]any {
	snap := r.Detach().(map[string]any)
	snap[VersioningField] = map[string]any{lsnField: r.LSN()}
	return snap
}
