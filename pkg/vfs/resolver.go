package vfs

// Tier identifies which table of a fallback chain served an operation.
type Tier int

const (
	TierNone Tier = iota
	TierOwn
	TierDirectoryDefault
	TierSuperblockDefault
	TierEntry
)

func (t Tier) String() string {
	switch t {
	case TierOwn:
		return "own"
	case TierDirectoryDefault:
		return "directory"
	case TierSuperblockDefault:
		return "superblock"
	case TierEntry:
		return "entry"
	default:
		return "none"
	}
}

// chain holds the tables consulted for one operation, in order: the node's
// own table, the owning directory's default of the same kind, and the
// superblock default. Each table is read under its own lock and the lock is
// released before the next one is taken.
type chain [3]any

// pick returns the first table in c that implements T.
func pick[T any](c chain) (T, Tier, bool) {
	for i, table := range c {
		if impl, ok := table.(T); ok {
			return impl, Tier(i + 1), true
		}
	}
	var zero T
	return zero, TierNone, false
}

func fileChain(f *File) chain {
	c := chain{f.Ops()}
	if p := f.entry.Parent(); p != nil {
		c[1] = p.Defaults().File
		if sb := p.Superblock(); sb != nil {
			c[2] = sb.Defaults().File
		}
	}
	return c
}

func dirChain(d *Directory) chain {
	c := chain{d.Ops()}
	if p := d.entry.Parent(); p != nil {
		c[1] = p.Defaults().Dir
	}
	if sb := d.Superblock(); sb != nil {
		c[2] = sb.Defaults().Dir
	}
	return c
}

func entryChain(e *Entry) chain {
	c := chain{e.Ops()}
	if p := e.Parent(); p != nil {
		c[1] = p.Defaults().Entry
	}
	if sb := e.Superblock(); sb != nil {
		c[2] = sb.Defaults().Entry
	}
	return c
}

// resolveFileOp finds the implementation of T for f.
func resolveFileOp[T any](f *File) (T, Tier, error) {
	impl, tier, ok := pick[T](fileChain(f))
	if !ok {
		return impl, TierNone, newError(ErrNotImplemented, f.entry.Path())
	}
	return impl, tier, nil
}

// resolveDirOp finds the implementation of T for d.
func resolveDirOp[T any](d *Directory) (T, Tier, error) {
	impl, tier, ok := pick[T](dirChain(d))
	if !ok {
		return impl, TierNone, newError(ErrNotImplemented, d.entry.Path())
	}
	return impl, tier, nil
}

// resolveEntryOp finds the implementation of T in the entry-level chain.
// Every hit reports TierEntry.
func resolveEntryOp[T any](e *Entry) (T, Tier, error) {
	impl, _, ok := pick[T](entryChain(e))
	if !ok {
		return impl, TierNone, newError(ErrNotImplemented, e.Path())
	}
	return impl, TierEntry, nil
}
