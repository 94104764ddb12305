package zerkalo

import (
	"fmt"
	"strconv"

	"github.com/drpcorg/zerkalo/zerkalo_errors"
)

type Op byte

const (
	OpSet    Op = 'S'
	OpDelete Op = 'D'
)

func (op Op) String() string {
	switch op {
	case OpSet:
		return "SET"
	case OpDelete:
		return "DELETE"
	default:
		return "?"
	}
}

func ParseOp(s string) (Op, error) {
	switch s {
	case "SET":
		return OpSet, nil
	case "DELETE":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("%w: op %q", zerkalo_errors.ErrMalformedEntry, s)
	}
}

// Entry is one mutation of the tree. Entry 0 of every log is a SET
// with an empty path carrying the initial root value; later entries
// are deltas against the tree produced by the entries before them.
type Entry struct {
	Op    Op
	Path  []string
	Value any
}

// Plain renders the entry in its in-tree form, the one that lives
// inside __versioning__.log and survives detach/re-attach.
func (e Entry) Plain() map[string]any {
	path := make([]any, len(e.Path))
	for i, k := range e.Path {
		path[i] = k
	}
	return map[string]any{
		"op":    e.Op.String(),
		"path":  path,
		"value": DeepCopy(e.Value),
	}
}

// ParseEntry reads an entry back from its in-tree form.
func ParseEntry(raw any) (e Entry, err error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return e, fmt.Errorf("%w: not a mapping", zerkalo_errors.ErrMalformedEntry)
	}
	ops, ok := m["op"].(string)
	if !ok {
		return e, fmt.Errorf("%w: no op", zerkalo_errors.ErrMalformedEntry)
	}
	if e.Op, err = ParseOp(ops); err != nil {
		return e, err
	}
	rawPath, ok := m["path"].([]any)
	if !ok {
		return e, fmt.Errorf("%w: no path", zerkalo_errors.ErrMalformedEntry)
	}
	e.Path = make([]string, len(rawPath))
	for i, k := range rawPath {
		ks, ok := k.(string)
		if !ok {
			return e, fmt.Errorf("%w: non-string path key", zerkalo_errors.ErrMalformedEntry)
		}
		e.Path[i] = ks
	}
	if _, ok = m["value"]; !ok {
		return e, fmt.Errorf("%w: no value", zerkalo_errors.ErrMalformedEntry)
	}
	e.Value = m["value"]
	return e, nil
}

// Apply replays the entry onto a plain tree. The versioning block is
// never a legal target.
func (e Entry) Apply(tree map[string]any) error {
	if len(e.Path) > 0 && e.Path[0] == VersioningField {
		return fmt.Errorf("%w: path enters the versioning block", zerkalo_errors.ErrMalformedEntry)
	}
	if len(e.Path) == 0 {
		// wholesale replacement, entry 0 territory
		if e.Op != OpSet {
			return fmt.Errorf("%w: %s with empty path", zerkalo_errors.ErrMalformedEntry, e.Op)
		}
		root, ok := e.Value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: root value is not a mapping", zerkalo_errors.ErrMalformedEntry)
		}
		for k := range tree {
			if k != VersioningField {
				delete(tree, k)
			}
		}
		for k, v := range root {
			tree[k] = DeepCopy(v)
		}
		return nil
	}

	parent, put, err := resolveParent(tree, e.Path[:len(e.Path)-1])
	if err != nil {
		return err
	}
	key := e.Path[len(e.Path)-1]

	switch p := parent.(type) {
	case map[string]any:
		if e.Op == OpDelete {
			delete(p, key)
		} else {
			p[key] = DeepCopy(e.Value)
		}
		return nil

	case []any:
		if e.Op == OpSet && key == "length" {
			n, ok := asInt(e.Value)
			if !ok || n < 0 {
				return fmt.Errorf("%w: bad length %v", zerkalo_errors.ErrMalformedEntry, e.Value)
			}
			put(resized(p, n))
			return nil
		}
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return fmt.Errorf("%w: sequence key %q", zerkalo_errors.ErrMalformedEntry, key)
		}
		if e.Op == OpDelete {
			// a deleted slot is a hole; the length rule is separate
			if idx < len(p) {
				p[idx] = nil
			}
			return nil
		}
		if idx < len(p) {
			p[idx] = DeepCopy(e.Value)
			return nil
		}
		grown := resized(p, idx+1)
		grown[idx] = DeepCopy(e.Value)
		put(grown)
		return nil

	default:
		return fmt.Errorf("%w: path targets a scalar", zerkalo_errors.ErrMalformedEntry)
	}
}

func resized(s []any, n int) []any {
	if n <= len(s) {
		return s[:n]
	}
	grown := make([]any, n)
	copy(grown, s)
	return grown
}

// resolveParent walks the tree down to the container the final key
// addresses. put stores a replacement container back into its own
// parent; sequences reallocate when they grow or shrink.
func resolveParent(tree map[string]any, path []string) (container any, put func(any), err error) {
	container = any(tree)
	put = func(any) {} // the root mapping is never replaced
	for _, key := range path {
		switch c := container.(type) {
		case map[string]any:
			next, ok := c[key]
			if !ok {
				return nil, nil, fmt.Errorf("%w: key %q", zerkalo_errors.ErrOrphanedView, key)
			}
			k := key
			container, put = next, func(repl any) { c[k] = repl }
		case []any:
			idx, aerr := strconv.Atoi(key)
			if aerr != nil || idx < 0 || idx >= len(c) {
				return nil, nil, fmt.Errorf("%w: index %q", zerkalo_errors.ErrOrphanedView, key)
			}
			container, put = c[idx], func(repl any) { c[idx] = repl }
		default:
			return nil, nil, fmt.Errorf("%w: key %q on a scalar", zerkalo_errors.ErrOrphanedView, key)
		}
	}
	switch container.(type) {
	case map[string]any, []any:
		return container, put, nil
	default:
		return nil, nil, fmt.Errorf("%w: not a container", zerkalo_errors.ErrOrphanedView)
	}
}
