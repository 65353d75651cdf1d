package framebuffer

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/marmos91/framefs/internal/logger"
)

// NopPanel discards every flush.
type NopPanel struct{}

func (NopPanel) Flush(ctx context.Context, off int64, data []byte) error { return nil }

// LogPanel logs flushed regions at debug level. Useful when no display is
// connected.
type LogPanel struct {
	Geometry Geometry
}

func (p LogPanel) Flush(ctx context.Context, off int64, data []byte) error {
	if stride := int64(p.Geometry.Stride()); stride > 0 {
		logger.Debug("Framebuffer flush: %d bytes at row %d col %d", len(data), off/stride, (off%stride)/int64(p.Geometry.BytesPerPixel))
	} else {
		logger.Debug("Framebuffer flush: %d bytes at offset %d", len(data), off)
	}
	return nil
}

// FilePanel mirrors the frame into a host file or device node, for example
// a Linux /dev/fbN or a raw image file inspected by other tools.
type FilePanel struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFilePanel opens (creating if needed) path and sizes it to the frame.
func OpenFilePanel(path string, geom Geometry) (*FilePanel, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open panel output %q: %w", path, err)
	}

	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() && info.Size() < geom.Size() {
		if err := f.Truncate(geom.Size()); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("size panel output %q: %w", path, err)
		}
	}

	return &FilePanel{file: f}, nil
}

func (p *FilePanel) Flush(ctx context.Context, off int64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.file.WriteAt(data, off); err != nil {
		return fmt.Errorf("panel write: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (p *FilePanel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}
