package dicom

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/maruel/natural"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mrsinham/remindconv/internal/volume"
)

// ErrNoSeries is returned when a folder holds no readable DICOM image.
var ErrNoSeries = errors.New("no DICOM series found")

// slice is one parsed image file of a series.
type slice struct {
	path     string
	ds       dicom.Dataset
	position r3.Vec
	hasPos   bool
	instance int
}

// ReadSeries reads the first DICOM series found in dir into a volume.
// Slices are ordered by the projection of ImagePositionPatient onto the slice
// normal, or by InstanceNumber when a position is missing. The sorted file
// paths are returned with the volume.
func ReadSeries(dir string) (*volume.Volume, []string, error) {
	slices, err := collectSeries(dir)
	if err != nil {
		return nil, nil, err
	}

	first := slices[0].ds
	row, col := r3.Vec{X: 1}, r3.Vec{Y: 1}
	if iop, ok := getFloats(first, tag.ImageOrientationPatient); ok && len(iop) == 6 {
		row = r3.Unit(r3.Vec{X: iop[0], Y: iop[1], Z: iop[2]})
		col = r3.Unit(r3.Vec{X: iop[3], Y: iop[4], Z: iop[5]})
	}
	normal := r3.Unit(r3.Cross(row, col))

	sortSlices(slices, normal)

	rows, ok := getInt(first, tag.Rows)
	if !ok {
		return nil, nil, fmt.Errorf("%s: missing Rows", slices[0].path)
	}
	cols, ok := getInt(first, tag.Columns)
	if !ok {
		return nil, nil, fmt.Errorf("%s: missing Columns", slices[0].path)
	}

	var planes [][]float64
	rescaled := false
	files := make([]string, len(slices))
	for i, s := range slices {
		files[i] = s.path
		p, r, err := slicePixels(s, rows, cols)
		if err != nil {
			return nil, nil, err
		}
		planes = append(planes, p...)
		rescaled = rescaled || r
	}

	v := volume.New([3]int{cols, rows, len(planes)}, pixelType(first, rescaled))
	for z, p := range planes {
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v.Set(x, y, z, p[y*cols+x])
			}
		}
	}

	v.Spacing = [3]float64{1, 1, sliceSpacing(slices, normal)}
	if ps, ok := getFloats(first, tag.PixelSpacing); ok && len(ps) == 2 {
		// PixelSpacing is row spacing then column spacing.
		v.Spacing[0], v.Spacing[1] = ps[1], ps[0]
	}
	v.Direction = [3][3]float64{
		{row.X, row.Y, row.Z},
		{col.X, col.Y, col.Z},
		{normal.X, normal.Y, normal.Z},
	}
	if slices[0].hasPos {
		p := slices[0].position
		v.Origin = [3]float64{p.X, p.Y, p.Z}
	}
	return v, files, nil
}

// collectSeries parses the files of dir and keeps those of the first series
// in natural file name order.
func collectSeries(dir string) ([]slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read series folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(natural.StringSlice(names))

	var series string
	var slices []slice
	for _, name := range names {
		path := filepath.Join(dir, name)
		ds, err := dicom.ParseFile(path, nil)
		if err != nil {
			continue
		}
		if _, err := ds.FindElementByTag(tag.PixelData); err != nil {
			continue
		}
		uid, _ := getString(ds, tag.SeriesInstanceUID)
		if len(slices) == 0 {
			series = uid
		} else if uid != series {
			continue
		}

		s := slice{path: path, ds: ds}
		if ipp, ok := getFloats(ds, tag.ImagePositionPatient); ok && len(ipp) == 3 {
			s.position = r3.Vec{X: ipp[0], Y: ipp[1], Z: ipp[2]}
			s.hasPos = true
		}
		s.instance, _ = getInt(ds, tag.InstanceNumber)
		slices = append(slices, s)
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSeries)
	}
	return slices, nil
}

func sortSlices(slices []slice, normal r3.Vec) {
	allPos := true
	for _, s := range slices {
		allPos = allPos && s.hasPos
	}
	if allPos {
		sort.SliceStable(slices, func(i, j int) bool {
			return r3.Dot(slices[i].position, normal) < r3.Dot(slices[j].position, normal)
		})
		return
	}
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].instance < slices[j].instance
	})
}

// sliceSpacing returns the distance between the first two slices along the
// normal, falling back to SpacingBetweenSlices, then SliceThickness.
func sliceSpacing(slices []slice, normal r3.Vec) float64 {
	if len(slices) > 1 && slices[0].hasPos && slices[1].hasPos {
		d := math.Abs(r3.Dot(r3.Sub(slices[1].position, slices[0].position), normal))
		if d > 1e-6 {
			return d
		}
	}
	for _, t := range []tag.Tag{tag.SpacingBetweenSlices, tag.SliceThickness} {
		if f, ok := getFloats(slices[0].ds, t); ok && len(f) > 0 && f[0] > 0 {
			return f[0]
		}
	}
	return 1
}

// pixelType returns the voxel type of a series.
func pixelType(ds dicom.Dataset, rescaled bool) volume.DataType {
	if rescaled {
		return volume.Float32
	}
	bits, _ := getInt(ds, tag.BitsAllocated)
	signed, _ := getInt(ds, tag.PixelRepresentation)
	switch {
	case bits == 8:
		return volume.Uint8
	case bits == 32:
		return volume.Int32
	case signed == 1:
		return volume.Int16
	default:
		return volume.Uint16
	}
}

// slicePixels returns the rescaled frames of one file and whether a
// non-identity rescale was applied.
func slicePixels(s slice, rows, cols int) ([][]float64, bool, error) {
	elem, err := s.ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, false, fmt.Errorf("%s: missing PixelData", s.path)
	}
	info := dicom.MustGetPixelDataInfo(elem.Value)

	slope, intercept := 1.0, 0.0
	if f, ok := getFloats(s.ds, tag.RescaleSlope); ok && len(f) > 0 && f[0] != 0 {
		slope = f[0]
	}
	if f, ok := getFloats(s.ds, tag.RescaleIntercept); ok && len(f) > 0 {
		intercept = f[0]
	}
	signed, _ := getInt(s.ds, tag.PixelRepresentation)
	bits, _ := getInt(s.ds, tag.BitsAllocated)

	var planes [][]float64
	for _, fr := range info.Frames {
		p, err := framePixels(fr, rows, cols, signed == 1, bits)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", s.path, err)
		}
		if slope != 1 || intercept != 0 {
			for i, d := range p {
				p[i] = d*slope + intercept
			}
		}
		planes = append(planes, p)
	}
	return planes, slope != 1 || intercept != 0, nil
}

func framePixels(fr *frame.Frame, rows, cols int, signed bool, bits int) ([]float64, error) {
	if fr.Encapsulated {
		return nil, fmt.Errorf("compressed pixel data is not supported")
	}
	nf := fr.NativeData
	if nf == nil {
		return nil, fmt.Errorf("missing native pixel data")
	}
	if nf.Rows() != rows || nf.Cols() != cols {
		return nil, fmt.Errorf("frame is %dx%d, series is %dx%d", nf.Cols(), nf.Rows(), cols, rows)
	}

	out := make([]float64, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			px, err := nf.GetPixel(x, y)
			if err != nil {
				return nil, fmt.Errorf("read pixel (%d,%d): %w", x, y, err)
			}
			val := px[0]
			if signed {
				switch bits {
				case 8:
					val = int(int8(uint8(val)))
				case 16:
					val = int(int16(uint16(val)))
				}
			}
			out[y*cols+x] = float64(val)
		}
	}
	return out, nil
}
