package zerkalo

import (
	"slices"
	"sort"
	"strconv"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

// View is the managed surface over one node of a document tree. It
// carries the document reference, the absolute path from the root and
// a read-only flag; the unexported document pointer doubles as the
// unforgeable "this is ours" capability.
type View struct {
	doc  *Document
	path []string
	ro   bool
}

// Path returns the absolute path of the view.
func (v *View) Path() []string {
	return slices.Clone(v.path)
}

func (v *View) resolve() (any, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	cur := any(d.tree)
	for _, key := range v.path {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[key]
			if !ok {
				return nil, zerkalo_errors.ErrOrphanedView
			}
			cur = next
		case []any:
			idx, ok := seqIndex(key, len(c))
			if !ok {
				return nil, zerkalo_errors.ErrOrphanedView
			}
			cur = c[idx]
		default:
			return nil, zerkalo_errors.ErrOrphanedView
		}
	}
	return cur, nil
}

func seqIndex(key string, n int) (int, bool) {
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func (v *View) child(key string, val any) any {
	switch val.(type) {
	case map[string]any, []any:
		ro := v.ro || (len(v.path) == 0 && key == VersioningField)
		return &View{
			doc:  v.doc,
			path: append(slices.Clone(v.path), key),
			ro:   ro,
		}
	default:
		return val
	}
}

// Get reads a key. Scalars come back as-is, nested containers come
// back as views; a missing key is nil. On sequences the key is a
// decimal index or "length".
func (v *View) Get(key string) (any, error) {
	cur, err := v.resolve()
	if err != nil {
		return nil, err
	}
	switch c := cur.(type) {
	case map[string]any:
		val, ok := c[key]
		if !ok {
			return nil, nil
		}
		return v.child(key, val), nil
	case []any:
		if key == "length" {
			return len(c), nil
		}
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, zerkalo_errors.ErrInvalidKey
		}
		if idx >= len(c) {
			return nil, nil
		}
		return v.child(key, c[idx]), nil
	default:
		return nil, zerkalo_errors.ErrOrphanedView
	}
}

func (v *View) writable() (*Document, error) {
	d, err := docOf(v)
	if err != nil {
		return nil, err
	}
	if v.ro || d.ro {
		return nil, zerkalo_errors.ErrReadOnlyViolation
	}
	return d, nil
}

func checkAssignable(value any) error {
	switch value.(type) {
	case *View, *Replica:
		return zerkalo_errors.ErrCrossAttachment
	}
	if !Assignable(value) {
		return zerkalo_errors.ErrNonAssignableValue
	}
	return nil
}

// Set writes a key. The mutation lands in the tree, the log and the
// change bus, in that order. A SET equal to the current slot still
// logs; observers rely on event parity with writes.
func (v *View) Set(key string, value any) error {
	d, err := v.writable()
	if err != nil {
		return err
	}
	if len(v.path) == 0 && key == VersioningField {
		return zerkalo_errors.ErrReadOnlyViolation
	}
	if err := checkAssignable(value); err != nil {
		return err
	}
	cur, err := v.resolve()
	if err != nil {
		return err
	}
	switch cur.(type) {
	case map[string]any:
	case []any:
		if key == "length" {
			n, ok := asInt(value)
			if !ok || n < 0 {
				return zerkalo_errors.ErrInvalidKey
			}
		} else if idx, err := strconv.Atoi(key); err != nil || idx < 0 {
			return zerkalo_errors.ErrInvalidKey
		}
	default:
		return zerkalo_errors.ErrOrphanedView
	}
	return d.commit(Entry{
		Op:    OpSet,
		Path:  append(slices.Clone(v.path), key),
		Value: DeepCopy(value),
	})
}

// Delete removes a key. On sequences the slot becomes a hole; the
// length is a separate write.
func (v *View) Delete(key string) error {
	d, err := v.writable()
	if err != nil {
		return err
	}
	if len(v.path) == 0 && key == VersioningField {
		return zerkalo_errors.ErrReadOnlyViolation
	}
	cur, err := v.resolve()
	if err != nil {
		return err
	}
	switch cur.(type) {
	case map[string]any:
	case []any:
		if idx, err := strconv.Atoi(key); err != nil || idx < 0 {
			return zerkalo_errors.ErrInvalidKey
		}
	default:
		return zerkalo_errors.ErrOrphanedView
	}
	return d.commit(Entry{
		Op:   OpDelete,
		Path: append(slices.Clone(v.path), key),
	})
}

// Plain returns a deep copy of the subtree under the view.
func (v *View) Plain() (any, error) {
	cur, err := v.resolve()
	if err != nil {
		return nil, err
	}
	return DeepCopy(cur), nil
}

// Keys lists the keys of a mapping view in sorted order.
func (v *View) Keys() ([]string, error) {
	cur, err := v.resolve()
	if err != nil {
		return nil, err
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, zerkalo_errors.ErrInvalidKey
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the length of a sequence view.
func (v *View) Len() (int, error) {
	cur, err := v.resolve()
	if err != nil {
		return 0, err
	}
	s, ok := cur.([]any)
	if !ok {
		return 0, zerkalo_errors.ErrNotSequence
	}
	return len(s), nil
}

func (v *View) mutableSeq() (*Document, []any, error) {
	d, err := v.writable()
	if err != nil {
		return nil, nil, err
	}
	cur, err := v.resolve()
	if err != nil {
		return nil, nil, err
	}
	s, ok := cur.([]any)
	if !ok {
		return nil, nil, zerkalo_errors.ErrNotSequence
	}
	return d, s, nil
}

func (v *View) commitIndex(d *Document, idx int, value any) error {
	return d.commit(Entry{
		Op:    OpSet,
		Path:  append(slices.Clone(v.path), strconv.Itoa(idx)),
		Value: value,
	})
}

func (v *View) commitLength(d *Document, n int) error {
	return d.commit(Entry{
		Op:    OpSet,
		Path:  append(slices.Clone(v.path), "length"),
		Value: n,
	})
}

// Append pushes items onto a sequence, one SET entry per item in
// ascending index order.
func (v *View) Append(items ...any) error {
	d, s, err := v.mutableSeq()
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := checkAssignable(it); err != nil {
			return err
		}
	}
	n := len(s)
	for i, it := range items {
		if err := v.commitIndex(d, n+i, DeepCopy(it)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveLast pops the final element: a DELETE of the last slot and a
// length write.
func (v *View) RemoveLast() error {
	d, s, err := v.mutableSeq()
	if err != nil {
		return err
	}
	n := len(s)
	if n == 0 {
		return nil
	}
	if err := d.commit(Entry{
		Op:   OpDelete,
		Path: append(slices.Clone(v.path), strconv.Itoa(n-1)),
	}); err != nil {
		return err
	}
	return v.commitLength(d, n-1)
}

// RemoveFirst shifts the sequence down by one. Every surviving index
// is rewritten in ascending order, then the tail slot goes away.
func (v *View) RemoveFirst() error {
	d, s, err := v.mutableSeq()
	if err != nil {
		return err
	}
	n := len(s)
	if n == 0 {
		return nil
	}
	old := DeepCopy(s).([]any)
	for i := 0; i < n-1; i++ {
		if err := v.commitIndex(d, i, old[i+1]); err != nil {
			return err
		}
	}
	if err := d.commit(Entry{
		Op:   OpDelete,
		Path: append(slices.Clone(v.path), strconv.Itoa(n-1)),
	}); err != nil {
		return err
	}
	return v.commitLength(d, n-1)
}

// Reverse rewrites every slot in ascending index order.
func (v *View) Reverse() error {
	d, s, err := v.mutableSeq()
	if err != nil {
		return err
	}
	old := DeepCopy(s).([]any)
	n := len(old)
	for i := 0; i < n; i++ {
		if err := v.commitIndex(d, i, old[n-1-i]); err != nil {
			return err
		}
	}
	return nil
}

// Sort orders the sequence by less and rewrites every slot in
// ascending index order.
func (v *View) Sort(less func(a, b any) bool) error {
	d, s, err := v.mutableSeq()
	if err != nil {
		return err
	}
	old := DeepCopy(s).([]any)
	sort.SliceStable(old, func(i, j int) bool { return less(old[i], old[j]) })
	for i, val := range old {
		if err := v.commitIndex(d, i, val); err != nil {
			return err
		}
	}
	return nil
}

// Splice removes del elements at start and inserts items in their
// place. Shifted slots are rewritten in ascending index order; a
// shrink ends with a length write.
func (v *View) Splice(start, del int, items ...any) error {
	d, s, err := v.mutableSeq()
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := checkAssignable(it); err != nil {
			return err
		}
	}
	n := len(s)
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if del < 0 {
		del = 0
	}
	if start+del > n {
		del = n - start
	}
	old := DeepCopy(s).([]any)
	result := make([]any, 0, n-del+len(items))
	result = append(result, old[:start]...)
	for _, it := range items {
		result = append(result, DeepCopy(it))
	}
	result = append(result, old[start+del:]...)
	for i := start; i < len(result); i++ {
		if err := v.commitIndex(d, i, result[i]); err != nil {
			return err
		}
	}
	if len(result) < n {
		return v.commitLength(d, len(result))
	}
	return nil
}
