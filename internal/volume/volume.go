// Package volume holds 3D voxel volumes and the NIfTI-1 and NRRD file codecs.
//
// Geometry is kept in DICOM patient space (LPS). Codecs convert from and to the
// space of their file format.
package volume

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// DataType is the voxel storage type.
type DataType int

const (
	Uint8 DataType = iota
	Int16
	Uint16
	Int32
	Float32
	Float64
)

// Size returns the number of bytes of one voxel.
func (d DataType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 8
	}
}

// String returns the string representation of a DataType.
func (d DataType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// IsFloat reports whether d stores floating point values.
func (d DataType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Volume is a 3D voxel grid. Data is stored x-fastest: index = x + nx*(y + ny*z).
type Volume struct {
	Dims    [3]int
	Spacing [3]float64
	Origin  [3]float64
	// Direction[i] is the unit vector of voxel axis i in LPS.
	Direction [3][3]float64
	Type      DataType
	Data      []float64
}

// New returns a zero-filled volume with unit spacing and identity direction.
func New(dims [3]int, t DataType) *Volume {
	return &Volume{
		Dims:      dims,
		Spacing:   [3]float64{1, 1, 1},
		Direction: Identity(),
		Type:      t,
		Data:      make([]float64, dims[0]*dims[1]*dims[2]),
	}
}

// maxVoxels bounds the voxel count accepted from a file header.
const maxVoxels = 1 << 30

// checkDims rejects header dimensions that would not fit in memory.
func checkDims(dims [3]int) error {
	n := 1
	for i, d := range dims {
		if d <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
		if d > maxVoxels/n {
			return fmt.Errorf("dimensions %v exceed %d voxels", dims, maxVoxels)
		}
		n *= d
	}
	return nil
}

// Identity returns the identity direction matrix.
func Identity() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Len returns the number of voxels.
func (v *Volume) Len() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// Index returns the position of voxel (x, y, z) in Data.
func (v *Volume) Index(x, y, z int) int {
	return x + v.Dims[0]*(y+v.Dims[1]*z)
}

// At returns the value of voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set sets the value of voxel (x, y, z).
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// Slice returns the voxels of slice z, sharing storage with the volume.
func (v *Volume) Slice(z int) []float64 {
	n := v.Dims[0] * v.Dims[1]
	return v.Data[z*n : (z+1)*n]
}

// Range returns the minimum and maximum voxel values.
func (v *Volume) Range() (lo, hi float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	lo, hi = v.Data[0], v.Data[0]
	for _, d := range v.Data[1:] {
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// Validate checks that dimensions and data agree.
func (v *Volume) Validate() error {
	for i, d := range v.Dims {
		if d <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, d)
		}
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("data has %d voxels, dimensions need %d", len(v.Data), v.Len())
	}
	return nil
}

// encodeVoxels serialises data as t in the given byte order.
func encodeVoxels(data []float64, t DataType, order binary.ByteOrder) []byte {
	size := t.Size()
	buf := make([]byte, len(data)*size)
	for i, d := range data {
		b := buf[i*size:]
		switch t {
		case Uint8:
			b[0] = uint8(clamp(d, 0, math.MaxUint8))
		case Int16:
			order.PutUint16(b, uint16(int16(clamp(d, math.MinInt16, math.MaxInt16))))
		case Uint16:
			order.PutUint16(b, uint16(clamp(d, 0, math.MaxUint16)))
		case Int32:
			order.PutUint32(b, uint32(int32(clamp(d, math.MinInt32, math.MaxInt32))))
		case Float32:
			order.PutUint32(b, math.Float32bits(float32(d)))
		case Float64:
			order.PutUint64(b, math.Float64bits(d))
		}
	}
	return buf
}

// decodeVoxels reads n voxels of type t from buf.
func decodeVoxels(buf []byte, t DataType, n int, order binary.ByteOrder) ([]float64, error) {
	size := t.Size()
	if len(buf) < n*size {
		return nil, fmt.Errorf("voxel data too short: have %d bytes, need %d", len(buf), n*size)
	}
	data := make([]float64, n)
	for i := range data {
		b := buf[i*size:]
		switch t {
		case Uint8:
			data[i] = float64(b[0])
		case Int16:
			data[i] = float64(int16(order.Uint16(b)))
		case Uint16:
			data[i] = float64(order.Uint16(b))
		case Int32:
			data[i] = float64(int32(order.Uint32(b)))
		case Float32:
			data[i] = float64(math.Float32frombits(order.Uint32(b)))
		case Float64:
			data[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return data, nil
}

func clamp(d, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, math.Round(d)))
}

// Format is an on-disk volume format.
type Format int

const (
	FormatUnknown Format = iota
	FormatNIfTI
	FormatNRRD
)

// FormatOf returns the format selected by the file extension of path.
func FormatOf(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".nii"), strings.HasSuffix(name, ".nii.gz"):
		return FormatNIfTI
	case strings.HasSuffix(name, ".nrrd"):
		return FormatNRRD
	default:
		return FormatUnknown
	}
}

// ReadFile reads a volume, choosing the codec from the extension.
func ReadFile(path string) (*Volume, error) {
	switch FormatOf(path) {
	case FormatNIfTI:
		return ReadNIfTI(path)
	case FormatNRRD:
		return ReadNRRD(path)
	default:
		return nil, fmt.Errorf("unsupported volume file %s", path)
	}
}

// WriteFile writes a compressed volume, choosing the codec from the extension.
// .nii is written uncompressed.
func WriteFile(path string, v *Volume) error {
	switch FormatOf(path) {
	case FormatNIfTI:
		return WriteNIfTI(path, v)
	case FormatNRRD:
		return WriteNRRD(path, v, true)
	default:
		return fmt.Errorf("unsupported volume file %s", path)
	}
}
