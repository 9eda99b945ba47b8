package dicom

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/remindconv/internal/volume"
)

// SeriesInfo holds the identifying tags written into every file of an exported series.
type SeriesInfo struct {
	PatientID         string
	PatientName       string
	StudyID           string
	StudyDescription  string
	StudyDate         string
	StudyInstanceUID  string
	Modality          Modality
	SeriesDescription string
	SeriesNumber      string
}

// ExportDir returns the generic folder name WriteSeries writes export n into.
func ExportDir(n int) string {
	return fmt.Sprintf("ScalarVolume_%d", n)
}

// pixelEncoding maps voxel values to stored 16-bit pixel values.
type pixelEncoding struct {
	signed    bool
	slope     float64
	intercept float64
}

// chooseEncoding picks signed, unsigned or rescaled storage for v.
func chooseEncoding(v *volume.Volume) pixelEncoding {
	lo, hi := v.Range()
	integral := !v.Type.IsFloat()
	if !integral {
		integral = true
		for _, d := range v.Data {
			if d != math.Trunc(d) {
				integral = false
				break
			}
		}
	}
	switch {
	case integral && lo >= math.MinInt16 && hi <= math.MaxInt16 && lo < 0:
		return pixelEncoding{signed: true, slope: 1}
	case integral && lo >= 0 && hi <= math.MaxUint16:
		return pixelEncoding{slope: 1}
	}
	slope := (hi - lo) / math.MaxUint16
	if slope == 0 {
		slope = 1
	}
	return pixelEncoding{slope: slope, intercept: lo}
}

func (e pixelEncoding) store(d float64) uint16 {
	s := math.Round((d - e.intercept) / e.slope)
	if e.signed {
		return uint16(int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, s))))
	}
	return uint16(math.Max(0, math.Min(math.MaxUint16, s)))
}

// WriteSeries writes v as one DICOM file per slice into parent/ScalarVolume_<n>
// and returns that folder. Series, instance and frame of reference UIDs come
// from uids.
func WriteSeries(v *volume.Volume, info SeriesInfo, parent string, n int, uids *UIDFactory) (string, error) {
	if err := v.Validate(); err != nil {
		return "", fmt.Errorf("invalid volume: %w", err)
	}
	dir := filepath.Join(parent, ExportDir(n))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export folder: %w", err)
	}

	mod := Lookup(info.Modality)
	enc := chooseEncoding(v)
	seriesUID := uids.NewUID()
	frameOfReferenceUID := uids.NewUID()

	cols, rows := v.Dims[0], v.Dims[1]
	pixelsPerFrame := rows * cols
	pixelRepresentation := 0
	if enc.signed {
		pixelRepresentation = 1
	}

	lo, hi := v.Range()
	windowCenter, windowWidth := (lo+hi)/2, hi-lo
	if windowWidth <= 0 {
		windowCenter, windowWidth = mod.WindowCenter, mod.WindowWidth
	}

	dirs := v.Direction
	for z := 0; z < v.Dims[2]; z++ {
		sopInstanceUID := uids.NewUID()
		var pos [3]float64
		for r := 0; r < 3; r++ {
			pos[r] = v.Origin[r] + float64(z)*v.Spacing[2]*dirs[2][r]
		}
		sliceLocation := pos[0]*dirs[2][0] + pos[1]*dirs[2][1] + pos[2]*dirs[2][2]

		nativeFrame := frame.NewNativeFrame[uint16](16, rows, cols, pixelsPerFrame, 1)
		for i, d := range v.Slice(z) {
			nativeFrame.RawData[i] = enc.store(d)
		}
		pixelDataInfo := dicom.PixelDataInfo{
			Frames: []*frame.Frame{
				{
					Encapsulated: false,
					NativeData:   nativeFrame,
				},
			},
		}

		elements := []*dicom.Element{
			mustNewElement(tag.MediaStorageSOPClassUID, []string{mod.SOPClassUID}),
			mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopInstanceUID}),
			mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
			mustNewElement(tag.SOPClassUID, []string{mod.SOPClassUID}),
			mustNewElement(tag.SOPInstanceUID, []string{sopInstanceUID}),
			mustNewElement(tag.StudyDate, []string{info.StudyDate}),
			mustNewElement(tag.SeriesDate, []string{info.StudyDate}),
			mustNewElement(tag.Modality, []string{string(mod.Modality)}),
			mustNewElement(tag.StudyDescription, []string{info.StudyDescription}),
			mustNewElement(tag.SeriesDescription, []string{info.SeriesDescription}),
			mustNewElement(tag.PatientName, []string{info.PatientName}),
			mustNewElement(tag.PatientID, []string{info.PatientID}),
			mustNewElement(tag.SliceThickness, []string{floatToDS(v.Spacing[2])}),
			mustNewElement(tag.StudyInstanceUID, []string{info.StudyInstanceUID}),
			mustNewElement(tag.SeriesInstanceUID, []string{seriesUID}),
			mustNewElement(tag.StudyID, []string{info.StudyID}),
			mustNewElement(tag.SeriesNumber, []string{info.SeriesNumber}),
			mustNewElement(tag.InstanceNumber, []string{strconv.Itoa(z + 1)}),
			mustNewElement(tag.ImagePositionPatient, floatsToDS(pos[:]...)),
			mustNewElement(tag.ImageOrientationPatient, floatsToDS(
				dirs[0][0], dirs[0][1], dirs[0][2], dirs[1][0], dirs[1][1], dirs[1][2])),
			mustNewElement(tag.FrameOfReferenceUID, []string{frameOfReferenceUID}),
			mustNewElement(tag.SliceLocation, []string{floatToDS(sliceLocation)}),
			mustNewElement(tag.SamplesPerPixel, []int{1}),
			mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
			mustNewElement(tag.Rows, []int{rows}),
			mustNewElement(tag.Columns, []int{cols}),
			mustNewElement(tag.PixelSpacing, floatsToDS(v.Spacing[1], v.Spacing[0])),
			mustNewElement(tag.BitsAllocated, []int{16}),
			mustNewElement(tag.BitsStored, []int{16}),
			mustNewElement(tag.HighBit, []int{15}),
			mustNewElement(tag.PixelRepresentation, []int{pixelRepresentation}),
			mustNewElement(tag.WindowCenter, []string{floatToDS(windowCenter)}),
			mustNewElement(tag.WindowWidth, []string{floatToDS(windowWidth)}),
			mustNewElement(tag.RescaleIntercept, []string{floatToDS(enc.intercept)}),
			mustNewElement(tag.RescaleSlope, []string{floatToDS(enc.slope)}),
			mustNewElement(tag.RescaleType, []string{"US"}),
			mustNewElement(tag.PixelData, pixelDataInfo),
		}
		sortElements(elements)

		path := filepath.Join(dir, fmt.Sprintf("IMG%04d.dcm", z+1))
		if err := writeDatasetToFile(path, dicom.Dataset{Elements: elements}); err != nil {
			return "", fmt.Errorf("write slice %d: %w", z+1, err)
		}
	}
	return dir, nil
}
