package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ImageLoader decodes png, jpeg, bmp, tiff and webp files into tightly packed
// RGBA8, the layout GPU images are uploaded in.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	flip := false
	if params != nil {
		typedParams, ok := params.(*metadata.ImageResourceParams)
		if !ok {
			return nil, fmt.Errorf("failed to cast params in image loader")
		}
		flip = typedParams.FlipY
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	src, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	data := toRGBA(src, flip)
	return &metadata.Resource{
		Type:     metadata.ResourceTypeImage,
		Name:     nameOf(path) + "." + format,
		FullPath: path,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(*metadata.Resource) error {
	return nil
}

func toRGBA(src image.Image, flip bool) *metadata.ImageResourceData {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	pixels := dst.Pix
	if flip {
		row := b.Dx() * 4
		flipped := make([]uint8, len(pixels))
		for y := 0; y < b.Dy(); y++ {
			copy(flipped[y*row:(y+1)*row], pixels[(b.Dy()-1-y)*row:(b.Dy()-y)*row])
		}
		pixels = flipped
	}
	return &metadata.ImageResourceData{
		ChannelCount: 4,
		Width:        uint32(b.Dx()),
		Height:       uint32(b.Dy()),
		Pixels:       pixels,
	}
}
