package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Buffer keeps the bytes written to it. Backing memory grows with the highest
// written offset, so large and mostly unused buffers stay cheap.
type Buffer struct {
	device *Device
	handle *Object
	size   uint64
	usage  metadata.BufferUsage

	mu   sync.Mutex
	data []byte
}

func (b *Buffer) Handle() metadata.Buffer { return b.handle }
func (b *Buffer) Size() uint64            { return b.size }

func (b *Buffer) Write(offset uint64, data []byte) error {
	end := offset + uint64(len(data))
	if end > b.size {
		return fmt.Errorf("headless: %w: %s", core.ErrBufferTooSmall, b.handle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint64(len(b.data)) < end {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset:], data)
	return nil
}

// Contents returns a copy of the written prefix of the buffer.
func (b *Buffer) Contents() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func (b *Buffer) Destroy() {
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	b.device.release(b.handle)
}

type Image struct {
	device *Device
	desc   metadata.ImageDesc
	handle *Object
	view   *Object

	mu     sync.Mutex
	pixels []byte
}

func (i *Image) Handle() metadata.Image          { return i.handle }
func (i *Image) View() metadata.ImageView        { return i.view }
func (i *Image) Description() metadata.ImageDesc { return i.desc }

func (i *Image) Upload(pixels []byte) error {
	if i.desc.Usage&metadata.ImageUsageTransferDst == 0 {
		return fmt.Errorf("headless: image %s is not a transfer destination", i.desc.Label)
	}
	if i.desc.Format.IsDepth() || i.desc.Samples > metadata.SampleCount1 {
		return fmt.Errorf("headless: image %s cannot be uploaded to", i.desc.Label)
	}
	want := uint64(i.desc.Width) * uint64(i.desc.Height) * uint64(i.desc.Format.BytesPerPixel())
	if uint64(len(pixels)) != want {
		return fmt.Errorf("headless: image %s wants %d bytes, got %d", i.desc.Label, want, len(pixels))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pixels = append(i.pixels[:0], pixels...)
	return nil
}

// Pixels returns a copy of the last upload.
func (i *Image) Pixels() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]byte(nil), i.pixels...)
}

func (i *Image) Destroy() {
	i.device.mu.Lock()
	defer i.device.mu.Unlock()
	i.device.release(i.view)
	i.device.release(i.handle)
}
