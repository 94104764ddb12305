package zerkalo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

func TestReplicaFromSnapshot(t *testing.T) {
	d, err := Create(map[string]any{"a": 1})
	assert.Nil(t, err)
	snap, err := GetSnapshot(d)
	assert.Nil(t, err)

	r, err := ReplicaFromSnapshot(snap)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), r.LSN())
	assert.True(t, Equal(map[string]any{"a": 1}, r.Detach()))
}

func TestReplicaFromBadSnapshot(t *testing.T) {
	cases := []any{
		nil,
		42,
		map[string]any{},
		map[string]any{VersioningField: "nope"},
		map[string]any{VersioningField: map[string]any{}},
		map[string]any{VersioningField: map[string]any{lsnField: "NaN"}},
	}
	for _, c := range cases {
		_, err := ReplicaFromSnapshot(c)
		assert.ErrorIs(t, err, zerkalo_errors.ErrInvalidSnapshot, "input %v", c)
	}
}

func TestReplicaReadOnly(t *testing.T) {
	d, err := Create(map[string]any{"a": map[string]any{"b": 1}})
	assert.Nil(t, err)
	r, err := NewReplica(d)
	assert.Nil(t, err)

	root := r.Root()
	assert.ErrorIs(t, root.Set("a", 2), zerkalo_errors.ErrReadOnlyViolation)
	assert.ErrorIs(t, root.Delete("a"), zerkalo_errors.ErrReadOnlyViolation)

	nested, err := root.Get("a")
	assert.Nil(t, err)
	assert.ErrorIs(t, nested.(*View).Set("b", 2), zerkalo_errors.ErrReadOnlyViolation)
}

func TestReplicaChain(t *testing.T) {
	d, err := Create(map[string]any{})
	assert.Nil(t, err)

	r1, err := NewReplica(d)
	assert.Nil(t, err)
	emitter, err := EventEmitter(d)
	assert.Nil(t, err)
	emitter.OnChange(r1.Apply)

	r2, err := NewReplica(r1)
	assert.Nil(t, err)
	r1Emitter, err := r1.EventEmitter()
	assert.Nil(t, err)
	r1Emitter.OnChange(r2.Apply)

	assert.Nil(t, d.Set("a", 1))
	assert.Nil(t, d.Set("a", 2))

	assert.Equal(t, int64(2), r1.LSN())
	assert.Equal(t, int64(2), r2.LSN())
	assert.True(t, Equal(map[string]any{"a": 2}, r1.Detach()))
	assert.True(t, Equal(map[string]any{"a": 2}, r2.Detach()))
}

func TestReplicaMatchesRestore(t *testing.T) {
	d, err := Create(map[string]any{"list": []any{0}})
	assert.Nil(t, err)
	r, err := NewReplica(d)
	assert.Nil(t, err)
	emitter, err := EventEmitter(d)
	assert.Nil(t, err)
	emitter.OnChange(r.Apply)

	list, err := d.Get("list")
	assert.Nil(t, err)
	assert.Nil(t, list.(*View).Append(1, 2))
	assert.Nil(t, d.Set("done", true))

	n, err := VersionCount(d)
	assert.Nil(t, err)
	latest, err := RestoreVersion(d, n-1)
	assert.Nil(t, err)
	assert.True(t, Equal(latest, r.Detach()))
	assert.Equal(t, int64(n-1), r.LSN())
}

func TestReplicaOutOfSync(t *testing.T) {
	d, err := Create(map[string]any{})
	assert.Nil(t, err)
	r, err := NewReplica(d)
	assert.Nil(t, err)

	// the first event is never delivered
	assert.Nil(t, d.Set("a", 1))

	emitter, err := EventEmitter(d)
	assert.Nil(t, err)
	emitter.OnChange(r.Apply)

	// the second surfaces the gap at the write site
	err = d.Set("a", 2)
	assert.ErrorIs(t, err, zerkalo_errors.ErrOutOfSync)

	// the replica stays where it was; the document moved on
	assert.Equal(t, int64(0), r.LSN())
	n, err := VersionCount(d)
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, Equal(map[string]any{}, r.Detach()))
}

func TestIsReplica(t *testing.T) {
	d, err := Create(map[string]any{})
	assert.Nil(t, err)
	r, err := NewReplica(d)
	assert.Nil(t, err)

	assert.True(t, IsReplica(r))
	assert.True(t, IsReplica(r.Root()))
	assert.False(t, IsReplica(d))
	assert.False(t, IsReplica(map[string]any{}))
	assert.False(t, IsReplica(nil))
}

func TestReplicaUnlinkedFromSource(t *testing.T) {
	d, err := Create(map[string]any{"a": 1})
	assert.Nil(t, err)
	r, err := NewReplica(d)
	assert.Nil(t, err)

	// no subscription: the replica keeps its snapshot state
	assert.Nil(t, d.Set("a", 2))
	assert.True(t, Equal(map[string]any{"a": 1}, r.Detach()))
	assert.Equal(t, int64(0), r.LSN())
}

func TestNewReplicaRejects(t *testing.T) {
	_, err := NewReplica(42)
	assert.ErrorIs(t, err, zerkalo_errors.ErrNotManaged)
	_, err = NewReplica((*Replica)(nil))
	assert.ErrorIs(t, err, zerkalo_errors.ErrNotReplica)
}
