package volume

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// niftiHeader is the 348-byte NIfTI-1 header.
type niftiHeader struct {
	SizeOfHdr      int32
	DataTypeName   [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte
	Dim            [8]int16
	IntentP1       float32
	IntentP2       float32
	IntentP3       float32
	IntentCode     int16
	DataType       int16
	BitPix         int16
	SliceStart     int16
	PixDim         [8]float32
	VoxOffset      float32
	SclSlope       float32
	SclInter       float32
	SliceEnd       int16
	SliceCode      byte
	XYZTUnits      byte
	CalMax         float32
	CalMin         float32
	SliceDuration  float32
	TOffset        float32
	GLMax          int32
	GLMin          int32
	Descrip        [80]byte
	AuxFile        [24]byte
	QFormCode      int16
	SFormCode      int16
	QuaternB       float32
	QuaternC       float32
	QuaternD       float32
	QOffsetX       float32
	QOffsetY       float32
	QOffsetZ       float32
	SRowX          [4]float32
	SRowY          [4]float32
	SRowZ          [4]float32
	IntentName     [16]byte
	Magic          [4]byte
}

const (
	niftiHeaderSize = 348
	niftiVoxOffset  = 352

	niftiUnitsMM      = 2
	niftiXformScanner = 1
)

// NIfTI datatype codes.
var niftiCodes = map[DataType]int16{
	Uint8:   2,
	Int16:   4,
	Int32:   8,
	Float32: 16,
	Float64: 64,
	Uint16:  512,
}

func niftiType(code int16) (DataType, error) {
	for t, c := range niftiCodes {
		if c == code {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unsupported NIfTI datatype %d", code)
}

// WriteNIfTI writes v as a single-file NIfTI-1 image. A .gz suffix selects gzip compression.
func WriteNIfTI(path string, v *Volume) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid volume: %w", err)
	}
	for i, d := range v.Dims {
		if d > math.MaxInt16 {
			return fmt.Errorf("dimension %d is %d, NIfTI-1 allows at most %d", i, d, math.MaxInt16)
		}
	}

	hdr := niftiHeader{
		SizeOfHdr: niftiHeaderSize,
		Regular:   'r',
		DataType:  niftiCodes[v.Type],
		BitPix:    int16(v.Type.Size() * 8),
		VoxOffset: niftiVoxOffset,
		SclSlope:  1,
		XYZTUnits: niftiUnitsMM,
		QFormCode: niftiXformScanner,
		SFormCode: niftiXformScanner,
	}
	hdr.Dim = [8]int16{3, int16(v.Dims[0]), int16(v.Dims[1]), int16(v.Dims[2]), 1, 1, 1, 1}
	copy(hdr.Magic[:], "n+1\x00")

	// RAS affine: flip the first two rows of the LPS affine.
	var m [3][4]float64
	for i := 0; i < 3; i++ {
		for r := 0; r < 3; r++ {
			m[r][i] = v.Direction[i][r] * v.Spacing[i]
		}
	}
	for r := 0; r < 3; r++ {
		m[r][3] = v.Origin[r]
	}
	for c := 0; c < 4; c++ {
		m[0][c] = -m[0][c]
		m[1][c] = -m[1][c]
	}
	rows := [3]*[4]float32{&hdr.SRowX, &hdr.SRowY, &hdr.SRowZ}
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = float32(m[r][c])
		}
	}

	qb, qc, qd, qfac := quaternion(rasRotation(v.Direction))
	hdr.QuaternB, hdr.QuaternC, hdr.QuaternD = float32(qb), float32(qc), float32(qd)
	hdr.QOffsetX, hdr.QOffsetY, hdr.QOffsetZ = float32(m[0][3]), float32(m[1][3]), float32(m[2][3])
	hdr.PixDim = [8]float32{float32(qfac), float32(v.Spacing[0]), float32(v.Spacing[1]), float32(v.Spacing[2]), 1, 1, 1, 1}

	lo, hi := v.Range()
	hdr.CalMin, hdr.CalMax = float32(lo), float32(hi)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("encode NIfTI header: %w", err)
	}
	buf.Write(make([]byte, niftiVoxOffset-niftiHeaderSize))
	buf.Write(encodeVoxels(v.Data, v.Type, binary.LittleEndian))

	return writeMaybeGzip(path, buf.Bytes(), strings.HasSuffix(strings.ToLower(path), ".gz"))
}

// ReadNIfTI reads a single-file NIfTI-1 image (.nii or .nii.gz).
func ReadNIfTI(path string) (*Volume, error) {
	raw, err := readMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < niftiHeaderSize {
		return nil, fmt.Errorf("%s: file too short for a NIfTI header", path)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(binary.LittleEndian.Uint32(raw)) != niftiHeaderSize {
		order = binary.BigEndian
		if int32(binary.BigEndian.Uint32(raw)) != niftiHeaderSize {
			return nil, fmt.Errorf("%s: not a NIfTI-1 file", path)
		}
	}

	var hdr niftiHeader
	if err := binary.Read(bytes.NewReader(raw[:niftiHeaderSize]), order, &hdr); err != nil {
		return nil, fmt.Errorf("decode NIfTI header: %w", err)
	}
	if string(hdr.Magic[:3]) != "n+1" {
		return nil, fmt.Errorf("%s: unsupported NIfTI magic %q", path, hdr.Magic[:3])
	}
	if hdr.Dim[0] < 1 || hdr.Dim[0] > 4 || (hdr.Dim[0] == 4 && hdr.Dim[4] > 1) {
		return nil, fmt.Errorf("%s: only 3D images are supported, got %d dimensions", path, hdr.Dim[0])
	}

	t, err := niftiType(hdr.DataType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dims := [3]int{1, 1, 1}
	for i := 0; i < int(hdr.Dim[0]) && i < 3; i++ {
		dims[i] = int(hdr.Dim[i+1])
	}
	if err := checkDims(dims); err != nil {
		return nil, fmt.Errorf("%s: dim: %w", path, err)
	}
	v := New(dims, t)

	offset := int(hdr.VoxOffset)
	if offset < niftiHeaderSize {
		offset = niftiVoxOffset
	}
	if offset > len(raw) {
		return nil, fmt.Errorf("%s: vox_offset %d beyond end of file", path, offset)
	}
	v.Data, err = decodeVoxels(raw[offset:], t, v.Len(), order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if hdr.SclSlope != 0 && (hdr.SclSlope != 1 || hdr.SclInter != 0) {
		for i, d := range v.Data {
			v.Data[i] = d*float64(hdr.SclSlope) + float64(hdr.SclInter)
		}
		v.Type = Float32
	}

	readNIfTIGeometry(&hdr, v)
	return v, nil
}

func readNIfTIGeometry(hdr *niftiHeader, v *Volume) {
	// m is the RAS affine, columns scaled by spacing.
	var m [3][4]float64
	switch {
	case hdr.SFormCode > 0:
		rows := [3][4]float32{hdr.SRowX, hdr.SRowY, hdr.SRowZ}
		for r := 0; r < 3; r++ {
			for c := 0; c < 4; c++ {
				m[r][c] = float64(rows[r][c])
			}
		}
	case hdr.QFormCode > 0:
		rot := quaternionMatrix(float64(hdr.QuaternB), float64(hdr.QuaternC), float64(hdr.QuaternD))
		qfac := 1.0
		if hdr.PixDim[0] < 0 {
			qfac = -1
		}
		for r := 0; r < 3; r++ {
			m[r][0] = rot[r][0] * float64(hdr.PixDim[1])
			m[r][1] = rot[r][1] * float64(hdr.PixDim[2])
			m[r][2] = rot[r][2] * float64(hdr.PixDim[3]) * qfac
		}
		m[0][3], m[1][3], m[2][3] = float64(hdr.QOffsetX), float64(hdr.QOffsetY), float64(hdr.QOffsetZ)
	default:
		for i := 0; i < 3; i++ {
			m[i][i] = float64(hdr.PixDim[i+1])
			if m[i][i] == 0 {
				m[i][i] = 1
			}
		}
	}

	// To LPS.
	for c := 0; c < 4; c++ {
		m[0][c] = -m[0][c]
		m[1][c] = -m[1][c]
	}
	for i := 0; i < 3; i++ {
		col := [3]float64{m[0][i], m[1][i], m[2][i]}
		n := norm(col)
		if n == 0 {
			n = 1
			col[i] = 1
		}
		v.Spacing[i] = n
		for r := 0; r < 3; r++ {
			v.Direction[i][r] = col[r] / n
		}
	}
	v.Origin = [3]float64{m[0][3], m[1][3], m[2][3]}
}

// rasRotation returns the RAS rotation matrix (columns = axis directions).
func rasRotation(dir [3][3]float64) [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		r[0][i] = -dir[i][0]
		r[1][i] = -dir[i][1]
		r[2][i] = dir[i][2]
	}
	return r
}

// quaternion converts a rotation matrix to NIfTI quaternion parameters.
func quaternion(r [3][3]float64) (b, c, d, qfac float64) {
	qfac = 1
	det := r[0][0]*(r[1][1]*r[2][2]-r[1][2]*r[2][1]) -
		r[0][1]*(r[1][0]*r[2][2]-r[1][2]*r[2][0]) +
		r[0][2]*(r[1][0]*r[2][1]-r[1][1]*r[2][0])
	if det < 0 {
		qfac = -1
		for i := 0; i < 3; i++ {
			r[i][2] = -r[i][2]
		}
	}

	var a float64
	trace := r[0][0] + r[1][1] + r[2][2] + 1
	if trace > 0.5 {
		a = 0.5 * math.Sqrt(trace)
		b = 0.25 * (r[2][1] - r[1][2]) / a
		c = 0.25 * (r[0][2] - r[2][0]) / a
		d = 0.25 * (r[1][0] - r[0][1]) / a
	} else {
		xd := 1 + r[0][0] - (r[1][1] + r[2][2])
		yd := 1 + r[1][1] - (r[0][0] + r[2][2])
		zd := 1 + r[2][2] - (r[0][0] + r[1][1])
		switch {
		case xd > 1:
			b = 0.5 * math.Sqrt(xd)
			c = 0.25 * (r[0][1] + r[1][0]) / b
			d = 0.25 * (r[0][2] + r[2][0]) / b
			a = 0.25 * (r[2][1] - r[1][2]) / b
		case yd > 1:
			c = 0.5 * math.Sqrt(yd)
			b = 0.25 * (r[0][1] + r[1][0]) / c
			d = 0.25 * (r[1][2] + r[2][1]) / c
			a = 0.25 * (r[0][2] - r[2][0]) / c
		default:
			d = 0.5 * math.Sqrt(zd)
			b = 0.25 * (r[0][2] + r[2][0]) / d
			c = 0.25 * (r[1][2] + r[2][1]) / d
			a = 0.25 * (r[1][0] - r[0][1]) / d
		}
		if a < 0 {
			b, c, d = -b, -c, -d
		}
	}
	return b, c, d, qfac
}

// quaternionMatrix builds the rotation matrix of NIfTI quaternion (b, c, d).
func quaternionMatrix(b, c, d float64) [3][3]float64 {
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		s := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d = b*s, c*s, d*s
		a = 0
	} else {
		a = math.Sqrt(a)
	}
	return [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func writeMaybeGzip(path string, data []byte, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var w io.Writer = f
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}
	}
	return f.Close()
}

func readMaybeGzip(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return out, nil
}
