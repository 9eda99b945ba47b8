// Package dicom reads DICOM image series into volumes, writes volumes back as
// DICOM series and patches header fields of existing files.
package dicom

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Transfer syntax written by WriteSeries and Patch.
const explicitVRLittleEndian = "1.2.840.10008.1.2.1"

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// writeDatasetToFile writes a DICOM dataset to a file
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := dicom.Write(f, ds, opts...); err != nil {
		return err
	}
	return f.Close()
}

// sortElements orders elements by tag, as required on write.
func sortElements(elems []*dicom.Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i].Tag, elems[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})
}

// getString returns the trimmed string value of t and whether t is present.
func getString(ds dicom.Dataset, t tag.Tag) (string, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return "", false
	}
	return strings.Trim(elem.Value.String(), " []"), true
}

// getStrings returns the values of a multi-valued string element.
func getStrings(ds dicom.Dataset, t tag.Tag) ([]string, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return nil, false
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok {
		return nil, false
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.TrimSpace(v)
	}
	return out, true
}

// getInt returns the first integer value of t, accepting both binary and IS values.
func getInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return 0, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(v[0]))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// getFloats parses the backslash-separated decimal values of t.
func getFloats(ds dicom.Dataset, t tag.Tag) ([]float64, bool) {
	vals, ok := getStrings(ds, t)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// floatToDS converts a float64 to a DICOM Decimal String.
func floatToDS(f float64) string {
	s := strconv.FormatFloat(f, 'g', 10, 64)
	if len(s) > 16 {
		s = strconv.FormatFloat(f, 'g', 8, 64)
	}
	return s
}

// floatsToDS converts a vector to DICOM Decimal Strings.
func floatsToDS(fs ...float64) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = floatToDS(f)
	}
	return out
}
