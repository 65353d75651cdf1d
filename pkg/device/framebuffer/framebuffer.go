// Package framebuffer exposes a fixed-size pixel buffer as files.
//
// A Framebuffer is attached under a directory as two files:
//
//	pixels    raw frame bytes, row-major, BytesPerPixel bytes per pixel
//	geometry  "WIDTHxHEIGHTxBPP\n", read-only
//
// Writes to pixels are forwarded to a Panel, the boundary to whatever
// driver pushes bytes to real hardware.
package framebuffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/framefs/pkg/vfs"
)

// Geometry describes the frame dimensions.
type Geometry struct {
	Width         int `mapstructure:"width" yaml:"width" validate:"required,gt=0"`
	Height        int `mapstructure:"height" yaml:"height" validate:"required,gt=0"`
	BytesPerPixel int `mapstructure:"bytes_per_pixel" yaml:"bytes_per_pixel" validate:"required,oneof=1 2 3 4"`
}

// Size returns the frame size in bytes.
func (g Geometry) Size() int64 {
	return int64(g.Width) * int64(g.Height) * int64(g.BytesPerPixel)
}

// Stride returns the bytes per row.
func (g Geometry) Stride() int {
	return g.Width * g.BytesPerPixel
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d", g.Width, g.Height, g.BytesPerPixel)
}

// Validate rejects empty or unsupported geometries.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("framebuffer dimensions must be positive, got %dx%d", g.Width, g.Height)
	}
	switch g.BytesPerPixel {
	case 1, 2, 3, 4:
	default:
		return fmt.Errorf("unsupported bytes per pixel %d", g.BytesPerPixel)
	}
	return nil
}

// Panel receives the frame regions that changed.
type Panel interface {
	// Flush pushes data, which starts at byte offset off of the frame.
	Flush(ctx context.Context, off int64, data []byte) error
}

// Framebuffer is the pixel store shared by the files of one device.
type Framebuffer struct {
	geom  Geometry
	panel Panel

	mu     sync.RWMutex
	pixels []byte
}

// New allocates a black frame. A nil panel discards flushes.
func New(geom Geometry, panel Panel) (*Framebuffer, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if panel == nil {
		panel = NopPanel{}
	}
	return &Framebuffer{
		geom:   geom,
		panel:  panel,
		pixels: make([]byte, geom.Size()),
	}, nil
}

// Geometry returns the frame dimensions.
func (fb *Framebuffer) Geometry() Geometry { return fb.geom }

// Pixel returns the bytes of the pixel at (x, y).
func (fb *Framebuffer) Pixel(x, y int) ([]byte, error) {
	if x < 0 || y < 0 || x >= fb.geom.Width || y >= fb.geom.Height {
		return nil, fmt.Errorf("pixel (%d,%d) outside %s", x, y, fb.geom)
	}
	off := y*fb.geom.Stride() + x*fb.geom.BytesPerPixel

	fb.mu.RLock()
	defer fb.mu.RUnlock()
	out := make([]byte, fb.geom.BytesPerPixel)
	copy(out, fb.pixels[off:])
	return out, nil
}

// Snapshot returns a copy of the whole frame.
func (fb *Framebuffer) Snapshot() []byte {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	out := make([]byte, len(fb.pixels))
	copy(out, fb.pixels)
	return out
}

func (fb *Framebuffer) readAt(p []byte, off int64) int {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	if off >= int64(len(fb.pixels)) {
		return 0
	}
	return copy(p, fb.pixels[off:])
}

func (fb *Framebuffer) writeAt(p []byte, off int64) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	copy(fb.pixels[off:], p)
}

// clearFrom blacks out every byte from off to the end and returns the
// cleared region.
func (fb *Framebuffer) clearFrom(off int64) []byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	region := fb.pixels[off:]
	for i := range region {
		region[i] = 0
	}
	out := make([]byte, len(region))
	return out
}

// Attach creates directory name under parent holding the pixels and
// geometry files for fb.
//
// The directory's file-default is read-only, so any operation the files'
// own tables do not provide (a write to geometry, for instance) is refused
// rather than reaching the writable filesystem default.
func Attach(parent *vfs.Directory, name string, fb *Framebuffer) (*vfs.Entry, error) {
	dirEntry, err := parent.CreateDirectory(name)
	if err != nil {
		return nil, fmt.Errorf("create device directory: %w", err)
	}
	dir, err := dirEntry.Dir()
	if err != nil {
		return nil, err
	}

	var inner vfs.FileOps
	if sb := parent.Superblock(); sb != nil {
		inner = sb.Defaults().File
	}
	dir.SetFileDefault(vfs.ReadOnlyFileOps{Inner: inner})

	pixels := vfs.NewFileWithMode("pixels", 0o666)
	if err := install(dir, pixels, &PixelOps{FB: fb}, fb.geom.Size()); err != nil {
		return nil, err
	}

	geometry := vfs.NewFileWithMode("geometry", 0o444)
	text := geometryText(fb.geom)
	if err := install(dir, geometry, &GeometryOps{FB: fb}, int64(len(text))); err != nil {
		return nil, err
	}

	return dirEntry, nil
}

func install(dir *vfs.Directory, e *vfs.Entry, ops vfs.FileOps, size int64) error {
	f, err := e.File()
	if err != nil {
		return err
	}
	f.SetOps(ops)
	f.SetSize(size)
	if err := dir.Add(e); err != nil {
		return fmt.Errorf("attach %s: %w", e.Name(), err)
	}
	return nil
}

func geometryText(g Geometry) string {
	return g.String() + "\n"
}
