package vfs

import "strings"

// Resolve translates an absolute slash-separated path into an entry.
//
// "/" returns the root without walking. Every other path is split into
// non-empty segments and walked from the root, taking each directory's
// lock shared for one lookup at a time. A missing segment fails with
// ErrNotFound; a file in a non-final position fails with ErrNotADirectory.
// The final entry is returned whatever its kind.
func (sb *Superblock) Resolve(p string) (*Entry, error) {
	if p == "/" {
		return sb.root, nil
	}
	if !strings.HasPrefix(p, "/") {
		return nil, Errorf(ErrInvalidArgument, p, "path is not absolute")
	}

	cur := sb.root
	for _, seg := range splitPath(p) {
		dir, err := cur.Dir()
		if err != nil {
			return nil, newError(ErrNotADirectory, cur.Path())
		}
		next, err := dir.Lookup(seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// ResolveParent resolves the directory that would contain p and returns it
// with the final segment. The final segment itself need not exist.
func (sb *Superblock) ResolveParent(p string) (*Directory, string, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, "", Errorf(ErrInvalidArgument, p, "path is not absolute")
	}

	segs := splitPath(p)
	if len(segs) == 0 {
		return nil, "", Errorf(ErrInvalidArgument, p, "root has no parent")
	}

	parentPath := "/" + strings.Join(segs[:len(segs)-1], "/")
	parent, err := sb.Resolve(parentPath)
	if err != nil {
		return nil, "", err
	}
	dir, err := parent.Dir()
	if err != nil {
		return nil, "", err
	}
	return dir, segs[len(segs)-1], nil
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}
