package zerkalo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

func TestViewGet(t *testing.T) {
	d, err := Create(map[string]any{
		"scalar": 42,
		"nested": map[string]any{"deep": "value"},
		"list":   []any{"zero", 1},
	})
	assert.Nil(t, err)

	got, err := d.Get("scalar")
	assert.Nil(t, err)
	assert.Equal(t, 42, got)

	missing, err := d.Get("nope")
	assert.Nil(t, err)
	assert.Nil(t, missing)

	nested, err := d.Get("nested")
	assert.Nil(t, err)
	deep, err := nested.(*View).Get("deep")
	assert.Nil(t, err)
	assert.Equal(t, "value", deep)

	list, err := d.Get("list")
	assert.Nil(t, err)
	zero, err := list.(*View).Get("0")
	assert.Nil(t, err)
	assert.Equal(t, "zero", zero)

	length, err := list.(*View).Get("length")
	assert.Nil(t, err)
	assert.Equal(t, 2, length)

	_, err = list.(*View).Get("not-an-index")
	assert.ErrorIs(t, err, zerkalo_errors.ErrInvalidKey)
}

func TestViewSetDeep(t *testing.T) {
	d, err := Create(map[string]any{})
	assert.Nil(t, err)

	assert.Nil(t, d.Set("a", map[string]any{"b": map[string]any{}}))
	ab, err := d.Get("a")
	assert.Nil(t, err)
	b, err := ab.(*View).Get("b")
	assert.Nil(t, err)
	assert.Nil(t, b.(*View).Set("c", []any{1, 2, 3}))

	plain, err := Detach(d)
	assert.Nil(t, err)
	assert.True(t, Equal(map[string]any{
		"a": map[string]any{"b": map[string]any{"c": []any{1, 2, 3}}},
	}, plain))

	n, err := VersionCount(d)
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
}

func TestViewSetRejects(t *testing.T) {
	d, err := Create(map[string]any{"list": []any{}})
	assert.Nil(t, err)

	assert.ErrorIs(t, d.Set("f", func() {}), zerkalo_errors.ErrNonAssignableValue)
	assert.ErrorIs(t, d.Set("s", struct{}{}), zerkalo_errors.ErrNonAssignableValue)

	list, err := d.Get("list")
	assert.Nil(t, err)
	assert.ErrorIs(t, list.(*View).Set("key", 1), zerkalo_errors.ErrInvalidKey)
	assert.ErrorIs(t, list.(*View).Set("-1", 1), zerkalo_errors.ErrInvalidKey)
	assert.ErrorIs(t, list.(*View).Set("length", "five"), zerkalo_errors.ErrInvalidKey)

	// failed writes leave no trace
	n, err := VersionCount(d)
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
}

func TestCrossAttachment(t *testing.T) {
	d, err := Create(map[string]any{"a": map[string]any{"b": 1}})
	assert.Nil(t, err)
	e, err := Create(map[string]any{})
	assert.Nil(t, err)

	da, err := d.Get("a")
	assert.Nil(t, err)

	// same document
	assert.ErrorIs(t, d.Set("alias", da), zerkalo_errors.ErrCrossAttachment)
	// another document
	assert.ErrorIs(t, e.Set("foreign", da), zerkalo_errors.ErrCrossAttachment)
	// a genuine copy is fine
	plain, err := da.(*View).Plain()
	assert.Nil(t, err)
	assert.Nil(t, e.Set("copy", plain))
}

func TestOrphanedView(t *testing.T) {
	d, err := Create(map[string]any{"a": map[string]any{"b": 1}})
	assert.Nil(t, err)

	da, err := d.Get("a")
	assert.Nil(t, err)
	va := da.(*View)

	assert.Nil(t, d.Delete("a"))

	assert.ErrorIs(t, va.Set("b", 2), zerkalo_errors.ErrOrphanedView)
	assert.ErrorIs(t, va.Delete("b"), zerkalo_errors.ErrOrphanedView)
	_, err = va.Get("b")
	assert.ErrorIs(t, err, zerkalo_errors.ErrOrphanedView)
}

func TestSequenceAppend(t *testing.T) {
	d, err := Create(map[string]any{"a": []any{0}})
	assert.Nil(t, err)

	list, err := d.Get("a")
	assert.Nil(t, err)
	va := list.(*View)
	assert.Nil(t, va.Append(1))
	assert.Nil(t, va.Append(2))

	plain, err := va.Plain()
	assert.Nil(t, err)
	assert.Equal(t, []any{0, 1, 2}, plain)

	n, err := VersionCount(d)
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
}

func TestSequenceRemove(t *testing.T) {
	d, err := Create(map[string]any{"a": []any{0, 1, 2}})
	assert.Nil(t, err)
	list, err := d.Get("a")
	assert.Nil(t, err)
	va := list.(*View)

	assert.Nil(t, va.RemoveLast())
	plain, _ := va.Plain()
	assert.Equal(t, []any{0, 1}, plain)

	assert.Nil(t, va.RemoveFirst())
	plain, _ = va.Plain()
	assert.Equal(t, []any{1}, plain)

	assert.Nil(t, va.RemoveLast())
	assert.Nil(t, va.RemoveLast()) // no-op on empty
	plain, _ = va.Plain()
	assert.Equal(t, []any{}, plain)
}

func TestSequenceReverseSortSplice(t *testing.T) {
	d, err := Create(map[string]any{"a": []any{3, 1, 2}})
	assert.Nil(t, err)
	list, err := d.Get("a")
	assert.Nil(t, err)
	va := list.(*View)

	assert.Nil(t, va.Reverse())
	plain, _ := va.Plain()
	assert.Equal(t, []any{2, 1, 3}, plain)

	assert.Nil(t, va.Sort(func(a, b any) bool {
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		return af < bf
	}))
	plain, _ = va.Plain()
	assert.Equal(t, []any{1, 2, 3}, plain)

	assert.Nil(t, va.Splice(1, 1, "a", "b"))
	plain, _ = va.Plain()
	assert.Equal(t, []any{1, "a", "b", 3}, plain)

	assert.Nil(t, va.Splice(0, 3))
	plain, _ = va.Plain()
	assert.Equal(t, []any{3}, plain)
}

func TestSequenceDecomposition(t *testing.T) {
	d, err := Create(map[string]any{"a": []any{0, 1}})
	assert.Nil(t, err)
	list, err := d.Get("a")
	assert.Nil(t, err)
	va := list.(*View)

	var events []Event
	emitter, err := EventEmitter(d)
	assert.Nil(t, err)
	emitter.OnChange(func(ev Event) error {
		events = append(events, ev)
		return nil
	})

	// pop decomposes into a hole and a length write
	assert.Nil(t, va.RemoveLast())
	assert.Equal(t, 2, len(events))
	assert.Equal(t, OpDelete, events[0].Entry.Op)
	assert.Equal(t, []string{"a", "1"}, events[0].Entry.Path)
	assert.Equal(t, OpSet, events[1].Entry.Op)
	assert.Equal(t, []string{"a", "length"}, events[1].Entry.Path)

	// each elementary entry gets its own consecutive LSN
	assert.Equal(t, int64(1), events[0].LSN)
	assert.Equal(t, int64(2), events[1].LSN)
}

func TestIndexWriteExtends(t *testing.T) {
	d, err := Create(map[string]any{"a": []any{}})
	assert.Nil(t, err)
	list, err := d.Get("a")
	assert.Nil(t, err)
	va := list.(*View)

	assert.Nil(t, va.Set("2", "x"))
	plain, _ := va.Plain()
	assert.Equal(t, []any{nil, nil, "x"}, plain)
}

func TestSetAlwaysLogs(t *testing.T) {
	d, err := Create(map[string]any{"a": 1})
	assert.Nil(t, err)

	assert.Nil(t, d.Set("a", 1))
	assert.Nil(t, d.Set("a", 1))

	n, err := VersionCount(d)
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
}

func TestReplayMatchesDetach(t *testing.T) {
	d, err := Create(map[string]any{"base": true})
	assert.Nil(t, err)
	assert.Nil(t, d.Set("a", map[string]any{"b": []any{1, 2}}))
	ab, err := d.Get("a")
	assert.Nil(t, err)
	bList, err := ab.(*View).Get("b")
	assert.Nil(t, err)
	assert.Nil(t, bList.(*View).Append(3))
	assert.Nil(t, bList.(*View).RemoveFirst())
	assert.Nil(t, d.Delete("base"))

	n, err := VersionCount(d)
	assert.Nil(t, err)
	latest, err := RestoreVersion(d, n-1)
	assert.Nil(t, err)
	detached, err := Detach(d)
	assert.Nil(t, err)
	assert.True(t, Equal(latest, detached))
}
