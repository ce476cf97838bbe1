package compression

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

const (
	// Magic number for star list payloads
	StarsMagic = "STAR"
	// Current format version
	StarsVersion = 1
	// Gzip compression level (balance between size and speed)
	DefaultGzipLevel = 6
)

// Quantization steps in world units.
const (
	QuantizationPosition = 0.01
	QuantizationSize     = 0.001
)

var errBadMagic = errors.New("not a star payload")

// StarsHeader is the fixed-size binary header.
type StarsHeader struct {
	Magic   [4]byte
	Version uint8
	Flags   uint8
	Count   uint32
	// Origin is subtracted from every position before quantizing so far-away
	// regions still fit in int32 offsets.
	OriginX float64
	OriginY float64
	OriginZ float64
}

// EncodeStars writes stars relative to origin as quantized binary and
// compresses the result with gzip. It returns the compressed bytes and the
// uncompressed length.
func EncodeStars(stars []procedural.Star, origin starmap.Vec3) ([]byte, int, error) {
	var raw bytes.Buffer
	header := StarsHeader{
		Version: StarsVersion,
		Count:   uint32(len(stars)),
		OriginX: origin.X,
		OriginY: origin.Y,
		OriginZ: origin.Z,
	}
	copy(header.Magic[:], StarsMagic)
	if err := binary.Write(&raw, binary.LittleEndian, header); err != nil {
		return nil, 0, fmt.Errorf("failed to write header: %w", err)
	}

	for i, s := range stars {
		rel := s.Position.Sub(origin)
		x, errX := quantize(rel.X, QuantizationPosition)
		y, errY := quantize(rel.Y, QuantizationPosition)
		z, errZ := quantize(rel.Z, QuantizationPosition)
		if err := errors.Join(errX, errY, errZ); err != nil {
			return nil, 0, fmt.Errorf("star %d (%s): %w", i, s.Name, err)
		}
		size := math.Round(s.Size / QuantizationSize)
		if size < 0 || size > math.MaxUint16 {
			return nil, 0, fmt.Errorf("star %d (%s): size %v out of range", i, s.Name, s.Size)
		}
		if len(s.Name) > math.MaxUint8 {
			return nil, 0, fmt.Errorf("star %d: name longer than %d bytes", i, math.MaxUint8)
		}

		var rec [15]byte
		binary.LittleEndian.PutUint32(rec[0:], uint32(x))
		binary.LittleEndian.PutUint32(rec[4:], uint32(y))
		binary.LittleEndian.PutUint32(rec[8:], uint32(z))
		binary.LittleEndian.PutUint16(rec[12:], uint16(size))
		rec[14] = uint8(len(s.Name))
		raw.Write(rec[:])
		raw.WriteString(s.Name)
	}

	compressed, err := gzipCompress(raw.Bytes(), DefaultGzipLevel)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compress with gzip: %w", err)
	}
	return compressed, raw.Len(), nil
}

// DecodeStars reverses EncodeStars. Positions and sizes come back rounded
// to the quantization steps.
func DecodeStars(data []byte) ([]procedural.Star, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()
	r := bufio.NewReader(zr)

	var header StarsHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != StarsMagic {
		return nil, errBadMagic
	}
	if header.Version != StarsVersion {
		return nil, fmt.Errorf("unsupported star payload version %d", header.Version)
	}

	origin := starmap.Vec3{X: header.OriginX, Y: header.OriginY, Z: header.OriginZ}
	stars := make([]procedural.Star, 0, min(header.Count, 1<<16))
	var rec [15]byte
	name := make([]byte, math.MaxUint8)
	for i := uint32(0); i < header.Count; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, fmt.Errorf("failed to read star %d: %w", i, err)
		}
		n := int(rec[14])
		if _, err := io.ReadFull(r, name[:n]); err != nil {
			return nil, fmt.Errorf("failed to read star %d name: %w", i, err)
		}
		rel := starmap.Vec3{
			X: float64(int32(binary.LittleEndian.Uint32(rec[0:]))) * QuantizationPosition,
			Y: float64(int32(binary.LittleEndian.Uint32(rec[4:]))) * QuantizationPosition,
			Z: float64(int32(binary.LittleEndian.Uint32(rec[8:]))) * QuantizationPosition,
		}
		stars = append(stars, procedural.Star{
			Position: origin.Add(rel),
			Size:     float64(binary.LittleEndian.Uint16(rec[12:])) * QuantizationSize,
			Name:     string(name[:n]),
		})
	}
	return stars, nil
}

func quantize(v, step float64) (int32, error) {
	q := math.Round(v / step)
	if q > math.MaxInt32 || q < math.MinInt32 || math.IsNaN(q) {
		return 0, fmt.Errorf("offset %v out of range", v)
	}
	return int32(q), nil
}

func gzipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
