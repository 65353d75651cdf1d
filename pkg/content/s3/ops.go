package s3

import (
	"github.com/marmos91/framefs/pkg/vfs"
)

// FileOps is the own table of every mirrored file. Write and truncate are
// not provided here, so they resolve through the mirror directory's
// read-only file-default.
type FileOps struct {
	mirror *Mirror
}

func objectKey(f *vfs.File) (string, bool) {
	obj, ok := f.Private().(object)
	return obj.key, ok
}

func (o *FileOps) Open(op *vfs.OpContext, f *vfs.File) error {
	if _, ok := objectKey(f); !ok {
		return vfs.Errorf(vfs.ErrBadHandle, op.Path, "file is not backed by an S3 object")
	}
	f.IncOpen()
	return nil
}

func (o *FileOps) Close(op *vfs.OpContext, f *vfs.File) error {
	_, err := f.DecOpen()
	return err
}

func (o *FileOps) Read(op *vfs.OpContext, f *vfs.File, p []byte, off int64) (int, error) {
	key, ok := objectKey(f)
	if !ok {
		return 0, vfs.Errorf(vfs.ErrBadHandle, op.Path, "file is not backed by an S3 object")
	}
	if len(p) == 0 || off >= f.Size() {
		return 0, nil
	}

	n, err := o.mirror.readAt(op.Context, key, p, off)
	if err != nil {
		return n, mapError(op.Path, err)
	}
	return n, nil
}

// Getattr refreshes the size from HeadObject and reports the file without
// write permission.
func (o *FileOps) Getattr(op *vfs.OpContext, f *vfs.File) (vfs.Attr, error) {
	key, ok := objectKey(f)
	if !ok {
		return vfs.Attr{}, vfs.Errorf(vfs.ErrBadHandle, op.Path, "file is not backed by an S3 object")
	}

	size, err := o.mirror.size(op.Context, key)
	if err != nil {
		if mapped := mapError(op.Path, err); mapped != nil {
			return vfs.Attr{}, mapped
		}
	} else {
		f.SetSize(size)
	}

	a := f.Entry().Attr()
	a.Mode &^= 0o222
	return a, nil
}

func (o *FileOps) Release(op *vfs.OpContext, f *vfs.File) error {
	return nil
}
