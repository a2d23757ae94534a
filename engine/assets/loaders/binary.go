package loaders

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/** @brief Parameters of the binary loader. */
type BinaryParams struct {
	/** @brief Read at most this many bytes, 0 reads the whole file. */
	Limit int
}

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	limit := 0
	if params != nil {
		p, ok := params.(*BinaryParams)
		if !ok {
			return nil, fmt.Errorf("failed to cast params in binary loader")
		}
		limit = p.Limit
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, int64(limit))
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeBinary,
		Name:     nameOf(path),
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(*metadata.Resource) error {
	return nil
}

// bytesToBytecode reinterprets little endian bytes as 32 bit words. Trailing
// bytes that do not fill a word are dropped.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode
}
