package volumeio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/golang/snappy"

	"awolmrf/internal/models"
)

// Kind identifies the voxel type stored in a container
type Kind uint8

const (
	LabelKind     Kind = 1
	IntensityKind Kind = 2
)

func (k Kind) String() string {
	switch k {
	case LabelKind:
		return "label"
	case IntensityKind:
		return "intensity"
	default:
		return fmt.Sprintf("unknown kind %d", uint8(k))
	}
}

// Compression is the compression applied to a container payload.
// At most 3 bits are available in the serialization byte.
type Compression uint8

const (
	Uncompressed Compression = 0
	Snappy       Compression = 1
)

func (c Compression) String() string {
	switch c {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	default:
		return "unknown compression"
	}
}

// Checksum is the integrity check stored with a container payload.
// At most 2 bits are available in the serialization byte.
type Checksum uint8

const (
	NoChecksum Checksum = 0
	CRC32      Checksum = 1
)

func (c Checksum) String() string {
	switch c {
	case NoChecksum:
		return "none"
	case CRC32:
		return "crc32"
	default:
		return "unknown checksum"
	}
}

// SerializationFormat packs compression and checksum into one byte
type SerializationFormat uint8

// EncodeSerializationFormat builds the serialization byte
func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	a := (uint8(compress) & 0x07) << 5
	b := (uint8(checksum) & 0x03) << 3
	return SerializationFormat(a | b)
}

// DecodeSerializationFormat splits the serialization byte
func DecodeSerializationFormat(s SerializationFormat) (Compression, Checksum) {
	return Compression(uint8(s) >> 5), Checksum((uint8(s) >> 3) & 0x03)
}

// DefaultFormat is used by the writers unless told otherwise
var DefaultFormat = EncodeSerializationFormat(Snappy, CRC32)

const (
	containerMagic = "AWVL"

	// Version 1 containers predate the geometry block and are read with
	// the default geometry
	containerVersion = 2
)

// header is the fixed-size prefix of a .vol file
type header struct {
	Magic   [4]byte
	Version uint8
	Kind    Kind
	Format  SerializationFormat
	_       uint8
	Width   uint32
	Height  uint32
	Depth   uint32
}

// geometryBlock follows the header from version 2 on
type geometryBlock struct {
	Spacing   [3]float64
	Origin    [3]float64
	Direction [9]float64
}

// serializePayload compresses data and prefixes the checksum of the stored bytes
func serializePayload(data []byte, format SerializationFormat) ([]byte, error) {
	compress, checksum := DecodeSerializationFormat(format)

	var stored []byte
	switch compress {
	case Uncompressed:
		stored = data
	case Snappy:
		stored = snappy.Encode(nil, data)
	default:
		return nil, fmt.Errorf("illegal compression %d", compress)
	}

	var buf bytes.Buffer
	switch checksum {
	case NoChecksum:
	case CRC32:
		if err := binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(stored)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("illegal checksum %d", checksum)
	}
	buf.Write(stored)
	return buf.Bytes(), nil
}

// deserializePayload verifies and decompresses a payload written by serializePayload
func deserializePayload(s []byte, format SerializationFormat) ([]byte, error) {
	compress, checksum := DecodeSerializationFormat(format)

	switch checksum {
	case NoChecksum:
	case CRC32:
		if len(s) < 4 {
			return nil, fmt.Errorf("payload too short for checksum")
		}
		stored := binary.LittleEndian.Uint32(s[:4])
		s = s[4:]
		if got := crc32.ChecksumIEEE(s); got != stored {
			return nil, fmt.Errorf("bad checksum: stored %x got %x", stored, got)
		}
	default:
		return nil, fmt.Errorf("illegal checksum %d", checksum)
	}

	switch compress {
	case Uncompressed:
		return s, nil
	case Snappy:
		data, err := snappy.Decode(nil, s)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("illegal compression %d", compress)
	}
}

// writeContainer writes a header, the geometry and the serialized payload
func writeContainer(w io.Writer, kind Kind, shape models.Shape, geom models.Geometry, data []byte, format SerializationFormat) error {
	payload, err := serializePayload(data, format)
	if err != nil {
		return err
	}
	h := header{
		Version: containerVersion,
		Kind:    kind,
		Format:  format,
		Width:   uint32(shape.Width),
		Height:  uint32(shape.Height),
		Depth:   uint32(shape.Depth),
	}
	copy(h.Magic[:], containerMagic)
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	// volumes built as struct literals carry no geometry
	if geom == (models.Geometry{}) {
		geom = models.DefaultGeometry()
	}
	g := geometryBlock{Spacing: geom.Spacing, Origin: geom.Origin, Direction: geom.Direction}
	if err := binary.Write(w, binary.LittleEndian, g); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readContainer reads a container and checks that it holds the expected kind
// with width*height*depth voxels of elemSize bytes.
func readContainer(r io.Reader, want Kind, elemSize int) (models.Shape, models.Geometry, []byte, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return models.Shape{}, models.Geometry{}, nil, fmt.Errorf("reading header: %w", err)
	}
	if string(h.Magic[:]) != containerMagic {
		return models.Shape{}, models.Geometry{}, nil, fmt.Errorf("not a volume container (magic %q)", h.Magic[:])
	}
	if h.Version < 1 || h.Version > containerVersion {
		return models.Shape{}, models.Geometry{}, nil, fmt.Errorf("unsupported container version %d", h.Version)
	}
	if h.Kind != want {
		return models.Shape{}, models.Geometry{}, nil, fmt.Errorf("container holds %s data, expected %s", h.Kind, want)
	}

	geom := models.DefaultGeometry()
	if h.Version >= 2 {
		var g geometryBlock
		if err := binary.Read(r, binary.LittleEndian, &g); err != nil {
			return models.Shape{}, models.Geometry{}, nil, fmt.Errorf("reading geometry: %w", err)
		}
		geom = models.Geometry{Spacing: g.Spacing, Origin: g.Origin, Direction: g.Direction}
		if err := geom.Validate(); err != nil {
			return models.Shape{}, models.Geometry{}, nil, err
		}
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return models.Shape{}, models.Geometry{}, nil, err
	}
	data, err := deserializePayload(payload, h.Format)
	if err != nil {
		return models.Shape{}, models.Geometry{}, nil, err
	}

	shape := models.Shape{Depth: int(h.Depth), Height: int(h.Height), Width: int(h.Width)}
	if len(data) != shape.Len()*elemSize {
		return models.Shape{}, models.Geometry{}, nil, fmt.Errorf("payload holds %d bytes, expected %d for %s", len(data), shape.Len()*elemSize, shape)
	}
	return shape, geom, data, nil
}

// WriteLabels writes a label volume as a container
func WriteLabels(w io.Writer, v *models.LabelVolume, format SerializationFormat) error {
	data := make([]byte, 4*len(v.Data))
	for i, label := range v.Data {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(label))
	}
	return writeContainer(w, LabelKind, v.Shape, v.Geometry, data, format)
}

// ReadLabels reads a label volume container
func ReadLabels(r io.Reader) (*models.LabelVolume, error) {
	shape, geom, data, err := readContainer(r, LabelKind, 4)
	if err != nil {
		return nil, err
	}
	v := models.NewLabelVolume(shape)
	v.Geometry = geom
	for i := range v.Data {
		v.Data[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}

// WriteIntensity writes an intensity volume as a container of float32 values
func WriteIntensity(w io.Writer, v *models.IntensityVolume, format SerializationFormat) error {
	data := make([]byte, 4*len(v.Data))
	for i, value := range v.Data {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(value)))
	}
	return writeContainer(w, IntensityKind, v.Shape, v.Geometry, data, format)
}

// ReadIntensity reads an intensity volume container
func ReadIntensity(r io.Reader) (*models.IntensityVolume, error) {
	shape, geom, data, err := readContainer(r, IntensityKind, 4)
	if err != nil {
		return nil, err
	}
	v := models.NewIntensityVolume(shape)
	v.Geometry = geom
	for i := range v.Data {
		v.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return v, nil
}
