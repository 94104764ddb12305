package zerkalo

import (
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

// VersioningField is the reserved root slot carrying the redo log on
// documents and the sequence number on snapshots and replicas.
const VersioningField = "__versioning__"

const (
	logField = "log"
	lsnField = "lsn"
)

const versionCacheSize = 16

// Document owns the working tree, the log inside it, and the change
// bus. It is never handed out directly; views are the public surface.
type Document struct {
	tree    map[string]any
	emitter *Emitter
	ro      bool

	// reconstructed historical versions, keyed by LSN
	versions *lru.Cache[int, map[string]any]

	hoses *hoseSet
}

func newDocument(tree map[string]any, ro bool) *Document {
	versions, _ := lru.New[int, map[string]any](versionCacheSize)
	return &Document{
		tree:     tree,
		emitter:  NewEmitter(),
		ro:       ro,
		versions: versions,
		hoses:    newHoseSet(),
	}
}

// Create wraps a plain mapping into a managed document. If the input
// carries a __versioning__ block the document is re-attached: the log
// is replayed and the result must equal the rest of the tree.
func Create(plain any) (*View, error) {
	switch plain.(type) {
	case *View, *Replica:
		return nil, zerkalo_errors.ErrAlreadyManaged
	}
	if !Manageable(plain) {
		return nil, zerkalo_errors.ErrNonManageable
	}
	working := DeepCopy(plain).(map[string]any)
	if raw, ok := working[VersioningField]; ok {
		if err := validateVersioning(working, raw); err != nil {
			return nil, err
		}
	} else {
		initial := DeepCopy(working)
		working[VersioningField] = map[string]any{
			logField: []any{Entry{Op: OpSet, Value: initial}.Plain()},
		}
	}
	return &View{doc: newDocument(working, false)}, nil
}

func validateVersioning(working map[string]any, raw any) error {
	vb, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: not a mapping", zerkalo_errors.ErrInvalidVersioningData)
	}
	rawLog, ok := vb[logField].([]any)
	if !ok || len(rawLog) == 0 {
		return fmt.Errorf("%w: no log", zerkalo_errors.ErrInvalidVersioningData)
	}
	entries := make([]Entry, len(rawLog))
	for i, r := range rawLog {
		e, err := ParseEntry(r)
		if err != nil {
			return errors.Join(zerkalo_errors.ErrInvalidVersioningData, err)
		}
		entries[i] = e
	}
	first := entries[0]
	if first.Op != OpSet || len(first.Path) != 0 {
		return fmt.Errorf("%w: log does not start with a root SET", zerkalo_errors.ErrInvalidVersioningData)
	}
	replayed, err := replay(entries, len(entries)-1)
	if err != nil {
		return errors.Join(zerkalo_errors.ErrInvalidVersioningData, err)
	}
	live := DeepCopy(working).(map[string]any)
	delete(live, VersioningField)
	if !Equal(replayed, live) {
		return fmt.Errorf("%w: replay mismatch", zerkalo_errors.ErrInvalidVersioningData)
	}
	return nil
}

func replay(entries []Entry, k int) (map[string]any, error) {
	root, ok := entries[0].Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: entry 0 value is not a mapping", zerkalo_errors.ErrMalformedEntry)
	}
	tree := DeepCopy(root).(map[string]any)
	for i := 1; i <= k; i++ {
		if err := entries[i].Apply(tree); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// IsManaged reports whether x is a managed view (or a replica, whose
// tree is managed too). Only values this library created qualify; a
// foreign mapping cannot masquerade as managed.
func IsManaged(x any) bool {
	switch t := x.(type) {
	case *View:
		return t != nil && t.doc != nil
	case *Replica:
		return t != nil && t.doc != nil
	default:
		return false
	}
}

func docOf(v *View) (*Document, error) {
	if v == nil || v.doc == nil {
		return nil, zerkalo_errors.ErrNotManaged
	}
	return v.doc, nil
}

func (d *Document) logSlice() []any {
	vb, _ := d.tree[VersioningField].(map[string]any)
	if vb == nil {
		return nil
	}
	log, _ := vb[logField].([]any)
	return log
}

func (d *Document) lsn() int64 {
	return int64(len(d.logSlice())) - 1
}

func (d *Document) appendEntry(e Entry) int64 {
	vb := d.tree[VersioningField].(map[string]any)
	log := append(vb[logField].([]any), e.Plain())
	vb[logField] = log
	return int64(len(log)) - 1
}

// commit is the single write path: apply the mutation, append the
// entry, then publish. The append happens-before the event; a failing
// handler surfaces here but the entry stays in the log.
func (d *Document) commit(e Entry) error {
	if err := e.Apply(d.tree); err != nil {
		return err
	}
	lsn := d.appendEntry(e)
	stats.appends.Add(1)
	ev := Event{
		LSN:   lsn,
		Entry: Entry{Op: e.Op, Path: slices.Clone(e.Path), Value: DeepCopy(e.Value)},
	}
	stats.events.Add(1)
	err := d.emitter.Emit(ev)
	d.hoses.broadcast(ev)
	return err
}

// VersionCount returns the length of the log.
func VersionCount(v *View) (int, error) {
	d, err := docOf(v)
	if err != nil {
		return 0, err
	}
	log := d.logSlice()
	if log == nil {
		return 0, zerkalo_errors.ErrNotManaged
	}
	return len(log), nil
}

// RestoreVersion reconstructs the tree as of LSN k and returns the
// value at the view's path, or the deepest ancestor that resolves in
// that era. The result is plain and detached.
func RestoreVersion(v *View, k int) (any, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	log := d.logSlice()
	if log == nil {
		return nil, zerkalo_errors.ErrNotManaged
	}
	if k < 0 || k >= len(log) {
		return nil, fmt.Errorf("%w: %d of %d", zerkalo_errors.ErrInvalidVersionId, k, len(log))
	}
	tree, err := d.versionAt(k)
	if err != nil {
		return nil, err
	}
	cur := any(tree)
walk:
	for _, key := range v.path {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[key]
			if !ok {
				break walk
			}
			cur = next
		case []any:
			idx, ok := seqIndex(key, len(c))
			if !ok {
				break walk
			}
			cur = c[idx]
		default:
			break walk
		}
	}
	return DeepCopy(cur), nil
}

func (d *Document) versionAt(k int) (map[string]any, error) {
	if tree, ok := d.versions.Get(k); ok {
		return tree, nil
	}
	log := d.logSlice()
	entries := make([]Entry, k+1)
	for i := 0; i <= k; i++ {
		e, err := ParseEntry(log[i])
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	tree, err := replay(entries, k)
	if err != nil {
		return nil, err
	}
	d.versions.Add(k, tree)
	return tree, nil
}

// Detach deep-copies the live tree without its versioning block. The
// result is plain and no longer observed.
func Detach(v *View) (any, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	detached := DeepCopy(d.tree).(map[string]any)
	delete(detached, VersioningField)
	return detached, nil
}

// DetachPreserveVersionData deep-copies the live tree keeping the
// versioning block; feeding the result back through Create restores
// the document with full history.
func DetachPreserveVersionData(v *View) (any, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	if d.logSlice() == nil {
		return nil, zerkalo_errors.ErrNotManaged
	}
	return DeepCopy(d.tree), nil
}

// GetSnapshot returns the detached tree tagged with the current LSN
// and no log. Snapshots seed replicas.
func GetSnapshot(v *View) (any, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	if d.logSlice() == nil {
		return nil, zerkalo_errors.ErrNotManaged
	}
	snap, err := Detach(v)
	if err != nil {
		return nil, err
	}
	snap.(map[string]any)[VersioningField] = map[string]any{lsnField: d.lsn()}
	return snap, nil
}

// GetRootObject returns a fresh view at the root over the same tree
// and emitter.
func GetRootObject(v *View) (*View, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	return &View{doc: d}, nil
}

// GetLog returns a read-only view over the log.
func GetLog(v *View) (*View, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	if d.logSlice() == nil {
		return nil, zerkalo_errors.ErrNotManaged
	}
	return &View{doc: d, path: []string{VersioningField, logField}, ro: true}, nil
}

// EventEmitter returns the document's change bus.
func EventEmitter(v *View) (*Emitter, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	return d.emitter, nil
}
