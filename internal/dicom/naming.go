package dicom

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

// SeriesName derives the output file name of a series from one of its files:
// "<SeriesNumber>_<SeriesDescription>", with SequenceName then ProtocolName
// standing in for a missing description, or SeriesInstanceUID when the series
// has no number.
func SeriesName(ds dicom.Dataset) (string, error) {
	if n, ok := getString(ds, tag.SeriesNumber); ok {
		for _, t := range []tag.Tag{tag.SeriesDescription, tag.SequenceName, tag.ProtocolName} {
			if s, ok := getString(ds, t); ok {
				return fmt.Sprintf("%s_%s", n, s), nil
			}
		}
		return n, nil
	}
	if uid, ok := getString(ds, tag.SeriesInstanceUID); ok {
		return uid, nil
	}
	return "", fmt.Errorf("no SeriesNumber or SeriesInstanceUID")
}

// SeriesFilename returns SeriesName for the file at path. A failure is logged
// and the empty name is returned.
func SeriesFilename(path string, log *zap.SugaredLogger) string {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		log.Warnf("Unable to convert: %s: %v", path, err)
		return ""
	}
	name, err := SeriesName(ds)
	if err != nil {
		log.Warnf("Unable to convert: %s: %v", path, err)
	}
	return name
}
