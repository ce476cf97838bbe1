package compression

import (
	"encoding/base64"
	"fmt"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

// FormatBinaryGzip names the payload format in CompressedStars.
const FormatBinaryGzip = "binary_gzip"

// CompressedStars is a star list ready for JSON transmission
type CompressedStars struct {
	Format           string       `json:"format"`            // "binary_gzip"
	Data             string       `json:"data"`              // Base64-encoded compressed data
	Origin           starmap.Vec3 `json:"origin"`            // Reference point of the quantized offsets
	Count            int          `json:"count"`             // Number of stars
	Size             int          `json:"size"`              // Compressed size in bytes
	UncompressedSize int          `json:"uncompressed_size"` // Binary size before gzip
}

// CompressAndFormatStars encodes stars relative to origin and wraps them in
// a base64 envelope.
func CompressAndFormatStars(stars []procedural.Star, origin starmap.Vec3) (*CompressedStars, error) {
	data, rawSize, err := EncodeStars(stars, origin)
	if err != nil {
		return nil, err
	}
	return &CompressedStars{
		Format:           FormatBinaryGzip,
		Data:             base64.StdEncoding.EncodeToString(data),
		Origin:           origin,
		Count:            len(stars),
		Size:             len(data),
		UncompressedSize: rawSize,
	}, nil
}

// Decode unwraps the envelope.
func (c *CompressedStars) Decode() ([]procedural.Star, error) {
	if c.Format != FormatBinaryGzip {
		return nil, fmt.Errorf("unsupported format %q", c.Format)
	}
	data, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return DecodeStars(data)
}

// EstimateJSONSize approximates the uncompressed JSON size of stars.
func EstimateJSONSize(stars []procedural.Star) int {
	// position object, size and name keys plus punctuation
	const perStar = 96
	total := 2
	for _, s := range stars {
		total += perStar + len(s.Name)
	}
	return total
}
