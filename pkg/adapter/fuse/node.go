package fuse

import (
	"context"
	"os"
	"path"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/marmos91/framefs/pkg/vfs"
)

// FS is the bazil filesystem root backed by a vfs.Filesystem.
type FS struct {
	fsys *vfs.Filesystem
}

var _ fs.FS = (*FS)(nil)

// NewFS wraps fsys.
func NewFS(fsys *vfs.Filesystem) *FS {
	return &FS{fsys: fsys}
}

func (f *FS) Root() (fs.Node, error) {
	return &Node{fsys: f.fsys, entry: f.fsys.Root()}, nil
}

// Node is one namespace entry. Nodes are cheap and created on every
// lookup; identity lives in the entry.
type Node struct {
	fsys  *vfs.Filesystem
	entry *vfs.Entry
}

var (
	_ fs.Node                = (*Node)(nil)
	_ fs.NodeRequestLookuper = (*Node)(nil)
	_ fs.NodeOpener          = (*Node)(nil)
	_ fs.NodeCreater         = (*Node)(nil)
	_ fs.NodeMkdirer         = (*Node)(nil)
	_ fs.NodeSetattrer       = (*Node)(nil)
	_ fs.NodeAccesser        = (*Node)(nil)
)

func (n *Node) child(e *vfs.Entry) *Node {
	return &Node{fsys: n.fsys, entry: e}
}

func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := n.fsys.Getattr(ctx, n.entry)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(a, attr)
	return nil
}

// Lookup resolves one child. Entries are returned with zero validity so
// the kernel asks again on every path walk.
func (n *Node) Lookup(ctx context.Context, req *fuse.LookupRequest, resp *fuse.LookupResponse) (fs.Node, error) {
	dir, err := n.entry.Dir()
	if err != nil {
		return nil, toErrno(err)
	}
	e, err := dir.Lookup(req.Name)
	if err != nil {
		return nil, toErrno(err)
	}
	resp.EntryValid = 0
	return n.child(e), nil
}

// Open returns a handle. File handles use direct I/O so every read and
// write reaches the providers instead of the page cache.
func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if n.entry.IsDir() {
		id, err := n.fsys.OpenDir(ctx, n.entry)
		if err != nil {
			return nil, toErrno(err)
		}
		return &Handle{fsys: n.fsys, id: id, dir: true}, nil
	}

	id, err := n.fsys.Open(ctx, n.entry, int(req.Flags))
	if err != nil {
		return nil, toErrno(err)
	}
	resp.Flags |= fuse.OpenDirectIO
	return &Handle{fsys: n.fsys, id: id}, nil
}

func (n *Node) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	mode := req.Mode.Perm() &^ req.Umask
	e, err := n.fsys.Create(ctx, path.Join(n.entry.Path(), req.Name), mode)
	if err != nil {
		return nil, nil, toErrno(err)
	}

	id, err := n.fsys.Open(ctx, e, int(req.Flags))
	if err != nil {
		return nil, nil, toErrno(err)
	}
	resp.Flags |= fuse.OpenDirectIO
	return n.child(e), &Handle{fsys: n.fsys, id: id}, nil
}

func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	perm := req.Mode.Perm() &^ req.Umask
	e, err := n.fsys.Mkdir(ctx, path.Join(n.entry.Path(), req.Name), perm)
	if err != nil {
		return nil, toErrno(err)
	}
	return n.child(e), nil
}

func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	attr, err := n.fsys.Setattr(ctx, n.entry, attrChanges(req))
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&resp.Attr, attr)
	return nil
}

func (n *Node) Access(ctx context.Context, req *fuse.AccessRequest) error {
	return toErrno(n.fsys.Access(ctx, n.entry, vfs.AccessMask(req.Mask)))
}

// Handle is an open file or directory.
type Handle struct {
	fsys *vfs.Filesystem
	id   vfs.HandleID
	dir  bool
}

var (
	_ fs.HandleReader       = (*Handle)(nil)
	_ fs.HandleWriter       = (*Handle)(nil)
	_ fs.HandleFlusher      = (*Handle)(nil)
	_ fs.HandleReleaser     = (*Handle)(nil)
	_ fs.HandleReadDirAller = (*Handle)(nil)
)

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := h.fsys.Read(ctx, h.id, buf, req.Offset)
	if err != nil {
		return toErrno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := h.fsys.Write(ctx, h.id, req.Data, req.Offset)
	if err != nil {
		return toErrno(err)
	}
	resp.Size = n
	return nil
}

// Flush is a no-op: writes are never buffered in the adapter.
func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return nil
}

func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	if h.dir {
		return toErrno(h.fsys.ReleaseDir(ctx, h.id))
	}
	return toErrno(h.fsys.Release(ctx, h.id))
}

func (h *Handle) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := h.fsys.ReadDir(ctx, h.id)
	if err != nil {
		return nil, toErrno(err)
	}

	out := make([]fuse.Dirent, 0, len(entries))
	for _, de := range entries {
		typ := fuse.DT_File
		if de.Kind == vfs.KindDirectory {
			typ = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Inode: de.Inode, Name: de.Name, Type: typ})
	}
	return out, nil
}

func fillAttr(dst *fuse.Attr, a vfs.Attr) {
	dst.Inode = a.Inode
	dst.Size = uint64(a.Size)
	dst.Blocks = (uint64(a.Size) + 511) / 512
	dst.Mode = a.Mode
	dst.Nlink = a.Nlink
	dst.Uid = a.UID
	dst.Gid = a.GID
	dst.Atime = a.Atime
	dst.Mtime = a.Mtime
	dst.Ctime = a.Ctime
	// Zero validity keeps the kernel from caching attributes.
	dst.Valid = 0
}

func attrChanges(req *fuse.SetattrRequest) vfs.AttrChanges {
	var ch vfs.AttrChanges
	if req.Valid.Size() {
		size := int64(req.Size)
		ch.Size = &size
	}
	if req.Valid.Mode() {
		mode := req.Mode & os.ModePerm
		ch.Mode = &mode
	}
	if req.Valid.Uid() {
		uid := req.Uid
		ch.UID = &uid
	}
	if req.Valid.Gid() {
		gid := req.Gid
		ch.GID = &gid
	}
	if req.Valid.Atime() {
		atime := req.Atime
		ch.Atime = &atime
	}
	if req.Valid.Mtime() {
		mtime := req.Mtime
		ch.Mtime = &mtime
	}
	return ch
}
