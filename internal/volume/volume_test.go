package volume

import (
	"compress/gzip"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// obliqueVolume returns a small volume with non-trivial geometry.
func obliqueVolume(t DataType) *Volume {
	v := New([3]int{4, 3, 2}, t)
	v.Spacing = [3]float64{0.5, 0.75, 2}
	v.Origin = [3]float64{-10, 20.5, 3}
	c, s := math.Cos(math.Pi/6), math.Sin(math.Pi/6)
	v.Direction = [3][3]float64{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
	for i := range v.Data {
		v.Data[i] = float64(i * 3)
	}
	return v
}

func assertGeometry(t *testing.T, want, got *Volume) {
	t.Helper()
	assert.Equal(t, want.Dims, got.Dims)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want.Spacing[i], got.Spacing[i], 1e-5, "spacing %d", i)
		assert.InDelta(t, want.Origin[i], got.Origin[i], 1e-4, "origin %d", i)
		for r := 0; r < 3; r++ {
			assert.InDelta(t, want.Direction[i][r], got.Direction[i][r], 1e-5, "direction %d,%d", i, r)
		}
	}
}

func TestVolume_Index(t *testing.T) {
	v := New([3]int{4, 3, 2}, Int16)
	v.Set(1, 2, 1, 42)

	assert.Equal(t, 1+4*(2+3*1), v.Index(1, 2, 1))
	assert.Equal(t, 42.0, v.At(1, 2, 1))
	assert.Equal(t, 42.0, v.Slice(1)[1+4*2])
	assert.Len(t, v.Slice(0), 12)
}

func TestVolume_Validate(t *testing.T) {
	v := New([3]int{2, 2, 2}, Uint8)
	require.NoError(t, v.Validate())

	v.Data = v.Data[:5]
	assert.Error(t, v.Validate())

	v = New([3]int{0, 2, 2}, Uint8)
	assert.Error(t, v.Validate())
}

func TestEncodeVoxels_Clamps(t *testing.T) {
	data := []float64{-5, 300, 12.6}
	out, err := decodeVoxels(encodeVoxels(data, Uint8, nil), Uint8, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 255, 13}, out)
}

func TestNIfTI_RoundTrip(t *testing.T) {
	for _, name := range []string{"vol.nii", "vol.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			want := obliqueVolume(Int16)
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteFile(path, want))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, Int16, got.Type)
			assert.Equal(t, want.Data, got.Data)
			assertGeometry(t, want, got)
		})
	}
}

func TestNIfTI_GzipDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.nii.gz")
	require.NoError(t, WriteNIfTI(path, obliqueVolume(Uint16)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	_, err = gzip.NewReader(f)
	assert.NoError(t, err, "a .nii.gz file must be gzip compressed")
}

func TestNIfTI_QFormOnly(t *testing.T) {
	want := obliqueVolume(Float32)
	path := filepath.Join(t.TempDir(), "vol.nii")
	require.NoError(t, WriteNIfTI(path, want))

	// Zero the sform code so the reader falls back to the quaternion.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[254], raw[255] = 0, 0
	require.NoError(t, os.WriteFile(path, raw, 0644))

	got, err := ReadNIfTI(path)
	require.NoError(t, err)
	assertGeometry(t, want, got)
}

func TestNIfTI_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nii")
	require.NoError(t, os.WriteFile(path, []byte("not a nifti file"), 0644))

	_, err := ReadNIfTI(path)
	assert.Error(t, err)
}

func TestNIfTI_RejectsBadDims(t *testing.T) {
	tests := map[string][3]int16{
		"negative":  {-2, 3, 2},
		"zero":      {4, 0, 2},
		"too large": {30000, 30000, 30000},
	}
	for name, dims := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vol.nii")
			require.NoError(t, WriteNIfTI(path, obliqueVolume(Int16)))

			// dim[1..3] follow dim[0] at byte 40 of the header.
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			for i, d := range dims {
				binary.LittleEndian.PutUint16(raw[42+2*i:], uint16(d))
			}
			require.NoError(t, os.WriteFile(path, raw, 0644))

			_, err = ReadNIfTI(path)
			assert.ErrorContains(t, err, "dim")
		})
	}
}

func TestNIfTI_WriteRejectsWideDims(t *testing.T) {
	v := New([3]int{math.MaxInt16 + 1, 1, 1}, Uint8)
	err := WriteNIfTI(filepath.Join(t.TempDir(), "wide.nii"), v)
	assert.ErrorContains(t, err, "at most 32767")
}

func TestNRRD_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		want := obliqueVolume(Float64)
		path := filepath.Join(t.TempDir(), "vol.nrrd")
		require.NoError(t, WriteNRRD(path, want, compress))

		got, err := ReadNRRD(path)
		require.NoError(t, err, "compress=%v", compress)
		assert.Equal(t, Float64, got.Type)
		assert.Equal(t, want.Data, got.Data)
		assertGeometry(t, want, got)
	}
}

func TestNRRD_RASSpace(t *testing.T) {
	hdr := "NRRD0004\n" +
		"type: uchar\n" +
		"dimension: 3\n" +
		"space: right-anterior-superior\n" +
		"sizes: 2 1 1\n" +
		"space directions: (2,0,0) (0,3,0) (0,0,4)\n" +
		"encoding: raw\n" +
		"space origin: (1,2,3)\n\n"
	path := filepath.Join(t.TempDir(), "ras.nrrd")
	require.NoError(t, os.WriteFile(path, append([]byte(hdr), 7, 9), 0644))

	v, err := ReadNRRD(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 9}, v.Data)
	assert.Equal(t, [3]float64{2, 3, 4}, v.Spacing)
	assert.Equal(t, [3]float64{-1, -2, 3}, v.Origin)
	assert.Equal(t, [3]float64{-1, 0, 0}, v.Direction[0])
}

func TestNRRD_2DAndSpacings(t *testing.T) {
	hdr := "NRRD0005\n" +
		"# comment\n" +
		"type: short\n" +
		"dimension: 2\n" +
		"sizes: 2 2\n" +
		"spacings: 0.5 0.25\n" +
		"endian: big\n" +
		"encoding: raw\n\n"
	path := filepath.Join(t.TempDir(), "plane.nrrd")
	require.NoError(t, os.WriteFile(path, append([]byte(hdr), 0xff, 0xff, 0, 1, 0, 2, 0, 3), 0644))

	v, err := ReadNRRD(path)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 1}, v.Dims)
	assert.Equal(t, []float64{-1, 1, 2, 3}, v.Data)
	assert.Equal(t, [3]float64{0.5, 0.25, 1}, v.Spacing)
}

func TestNRRD_Errors(t *testing.T) {
	tests := map[string]string{
		"detached":   "NRRD0004\ntype: short\ndimension: 3\nsizes: 1 1 1\nencoding: raw\ndata file: vol.raw\n\n",
		"4d":         "NRRD0004\ntype: short\ndimension: 4\nsizes: 1 1 1 1\nencoding: raw\n\n",
		"bad type":   "NRRD0004\ntype: complex\ndimension: 3\nsizes: 1 1 1\nencoding: raw\n\n",
		"bad magic":  "PNG\n\n",
		"bzip2":      "NRRD0004\ntype: short\ndimension: 3\nsizes: 1 1 1\nencoding: bzip2\n\n",
		"no data":    "NRRD0004\ntype: short\ndimension: 3\nsizes: 1 1 1\nencoding: raw\n\n",
		"bad sizes":  "NRRD0004\ntype: short\ndimension: 3\nsizes: 1 1\nencoding: raw\n\n",
		"no section": "NRRD0004\ntype: short\n",
		"negative":   "NRRD0004\ntype: short\ndimension: 3\nsizes: -2 3 4\nencoding: raw\n\n",
		"zero":       "NRRD0004\ntype: short\ndimension: 3\nsizes: 2 0 4\nencoding: raw\n\n",
		"too large":  "NRRD0004\ntype: short\ndimension: 3\nsizes: 100000 100000 100000\nencoding: raw\n\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.nrrd")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			assert.NotPanics(t, func() {
				_, err := ReadNRRD(path)
				assert.Error(t, err)
			})
		})
	}
}

func TestNIfTIToNRRD_PreservesGeometry(t *testing.T) {
	dir := t.TempDir()
	want := obliqueVolume(Int16)
	nii := filepath.Join(dir, "temp.nii.gz")
	require.NoError(t, WriteFile(nii, want))

	mid, err := ReadFile(nii)
	require.NoError(t, err)
	out := filepath.Join(dir, "out.nrrd")
	require.NoError(t, WriteFile(out, mid))

	got, err := ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)
	assertGeometry(t, want, got)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatNIfTI, FormatOf("a/b.nii"))
	assert.Equal(t, FormatNIfTI, FormatOf("a/B.NII.GZ"))
	assert.Equal(t, FormatNRRD, FormatOf("x.nrrd"))
	assert.Equal(t, FormatUnknown, FormatOf("x.dcm"))

	_, err := ReadFile("x.dcm")
	assert.Error(t, err)
}
