package metadata

import "fmt"

// ImageResourceData is a decoded image, tightly packed, rows top to bottom
// unless FlipY was requested.
type ImageResourceData struct {
	ChannelCount uint8
	Width        uint32
	Height       uint32
	Pixels       []uint8
}

// Size is the byte length Pixels must have.
func (d *ImageResourceData) Size() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(d.ChannelCount)
}

// Validate rejects empty images and pixel slices that do not match the extent.
func (d *ImageResourceData) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("image has an empty extent %dx%d", d.Width, d.Height)
	}
	if uint64(len(d.Pixels)) != d.Size() {
		return fmt.Errorf("image %dx%d with %d channels holds %d bytes, want %d",
			d.Width, d.Height, d.ChannelCount, len(d.Pixels), d.Size())
	}
	return nil
}

/** @brief Decoder options of the image loader. */
type ImageResourceParams struct {
	// FlipY stores the bottom row first, matching uv (0,0) at the bottom left.
	FlipY bool
}
