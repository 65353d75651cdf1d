package framebuffer

import (
	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/vfs"
)

// PixelOps is the file table of the pixels file. Its size is fixed to the
// frame size: writes that would run past the end fail with
// vfs.ErrOutOfSpace and truncate only blacks out the tail. A panel flush
// failure is logged and the write still succeeds.
type PixelOps struct {
	FB *Framebuffer
}

func (p *PixelOps) Open(op *vfs.OpContext, f *vfs.File) error {
	f.IncOpen()
	return nil
}

func (p *PixelOps) Close(op *vfs.OpContext, f *vfs.File) error {
	_, err := f.DecOpen()
	return err
}

func (p *PixelOps) Read(op *vfs.OpContext, f *vfs.File, buf []byte, off int64) (int, error) {
	return p.FB.readAt(buf, off), nil
}

func (p *PixelOps) Write(op *vfs.OpContext, f *vfs.File, data []byte, off int64) (int, error) {
	size := p.FB.geom.Size()
	if off > size-int64(len(data)) {
		return 0, vfs.Errorf(vfs.ErrOutOfSpace, op.Path, "write of %d bytes at %d exceeds frame size %d", len(data), off, size)
	}
	if len(data) == 0 {
		return 0, nil
	}

	p.FB.writeAt(data, off)
	f.Entry().Touch()

	// The frame keeps the bytes even if the panel misses them.
	if err := p.FB.panel.Flush(op.Context, off, data); err != nil {
		logger.Warn("Panel flush of %d bytes at offset %d failed: %v", len(data), off, err)
	}
	return len(data), nil
}

// Truncate blacks out the frame from size onwards. The logical size never
// changes.
func (p *PixelOps) Truncate(op *vfs.OpContext, f *vfs.File, size int64) error {
	frame := p.FB.geom.Size()
	if size > frame {
		return vfs.Errorf(vfs.ErrOutOfSpace, op.Path, "frame size is fixed at %d bytes", frame)
	}

	cleared := p.FB.clearFrom(size)
	f.Entry().Touch()
	if len(cleared) == 0 {
		return nil
	}
	if err := p.FB.panel.Flush(op.Context, size, cleared); err != nil {
		logger.Warn("Panel flush of cleared tail at offset %d failed: %v", size, err)
	}
	return nil
}

func (p *PixelOps) Getattr(op *vfs.OpContext, f *vfs.File) (vfs.Attr, error) {
	a := f.Entry().Attr()
	a.Size = p.FB.geom.Size()
	return a, nil
}

func (p *PixelOps) Release(op *vfs.OpContext, f *vfs.File) error {
	return nil
}

// GeometryOps is the file table of the geometry file. It provides no write
// or truncate, which therefore resolve through the device directory's
// read-only default.
type GeometryOps struct {
	FB *Framebuffer
}

func (g *GeometryOps) Open(op *vfs.OpContext, f *vfs.File) error {
	f.IncOpen()
	return nil
}

func (g *GeometryOps) Close(op *vfs.OpContext, f *vfs.File) error {
	_, err := f.DecOpen()
	return err
}

func (g *GeometryOps) Read(op *vfs.OpContext, f *vfs.File, buf []byte, off int64) (int, error) {
	text := geometryText(g.FB.geom)
	if off >= int64(len(text)) {
		return 0, nil
	}
	return copy(buf, text[off:]), nil
}

func (g *GeometryOps) Getattr(op *vfs.OpContext, f *vfs.File) (vfs.Attr, error) {
	a := f.Entry().Attr()
	a.Size = int64(len(geometryText(g.FB.geom)))
	a.Mode &^= 0o222
	return a, nil
}
