package zerkalo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

func TestEntryRoundTrip(t *testing.T) {
	e := Entry{Op: OpSet, Path: []string{"a", "1"}, Value: map[string]any{"b": 2}}
	parsed, err := ParseEntry(e.Plain())
	assert.Nil(t, err)
	assert.Equal(t, e.Op, parsed.Op)
	assert.Equal(t, e.Path, parsed.Path)
	assert.True(t, Equal(e.Value, parsed.Value))
}

func TestEntryParseMalformed(t *testing.T) {
	cases := []any{
		"not a mapping",
		map[string]any{"path": []any{}, "value": nil},
		map[string]any{"op": "NOPE", "path": []any{}, "value": nil},
		map[string]any{"op": "SET", "value": nil},
		map[string]any{"op": "SET", "path": []any{1}, "value": nil},
		map[string]any{"op": "SET", "path": []any{}},
	}
	for _, c := range cases {
		_, err := ParseEntry(c)
		assert.ErrorIs(t, err, zerkalo_errors.ErrMalformedEntry)
	}
}

func TestEntryApplyMapping(t *testing.T) {
	tree := map[string]any{"a": map[string]any{}}

	err := Entry{Op: OpSet, Path: []string{"a", "b"}, Value: 1}.Apply(tree)
	assert.Nil(t, err)
	assert.Equal(t, 1, tree["a"].(map[string]any)["b"])

	err = Entry{Op: OpDelete, Path: []string{"a", "b"}}.Apply(tree)
	assert.Nil(t, err)
	_, ok := tree["a"].(map[string]any)["b"]
	assert.False(t, ok)
}

func TestEntryApplySequence(t *testing.T) {
	tree := map[string]any{"s": []any{0, 1, 2}}

	// overwrite in place
	err := Entry{Op: OpSet, Path: []string{"s", "1"}, Value: "one"}.Apply(tree)
	assert.Nil(t, err)
	assert.Equal(t, []any{0, "one", 2}, tree["s"])

	// writing past the end grows the sequence with holes
	err = Entry{Op: OpSet, Path: []string{"s", "5"}, Value: 5}.Apply(tree)
	assert.Nil(t, err)
	assert.Equal(t, []any{0, "one", 2, nil, nil, 5}, tree["s"])

	// a deleted slot becomes a hole
	err = Entry{Op: OpDelete, Path: []string{"s", "0"}}.Apply(tree)
	assert.Nil(t, err)
	assert.Equal(t, []any{nil, "one", 2, nil, nil, 5}, tree["s"])

	// the length write truncates
	err = Entry{Op: OpSet, Path: []string{"s", "length"}, Value: 2}.Apply(tree)
	assert.Nil(t, err)
	assert.Equal(t, []any{nil, "one"}, tree["s"])

	err = Entry{Op: OpSet, Path: []string{"s", "bogus"}, Value: 1}.Apply(tree)
	assert.ErrorIs(t, err, zerkalo_errors.ErrMalformedEntry)
}

func TestEntryApplyWholesale(t *testing.T) {
	tree := map[string]any{
		"old":           1,
		VersioningField: map[string]any{logField: []any{}},
	}
	err := Entry{Op: OpSet, Value: map[string]any{"fresh": true}}.Apply(tree)
	assert.Nil(t, err)
	assert.Equal(t, true, tree["fresh"])
	_, ok := tree["old"]
	assert.False(t, ok)
	_, ok = tree[VersioningField]
	assert.True(t, ok)

	err = Entry{Op: OpDelete}.Apply(tree)
	assert.ErrorIs(t, err, zerkalo_errors.ErrMalformedEntry)
}

func TestEntryApplyVersioningGuard(t *testing.T) {
	tree := map[string]any{VersioningField: map[string]any{logField: []any{}}}
	err := Entry{Op: OpSet, Path: []string{VersioningField, "log"}, Value: 1}.Apply(tree)
	assert.ErrorIs(t, err, zerkalo_errors.ErrMalformedEntry)
}
