package layout

import (
	"errors"
	"fmt"
)

// ViolationKind classifies a broken naming convention.
type ViolationKind int

const (
	// NoMatch means no folder carries the expected label.
	NoMatch ViolationKind = iota
	// Ambiguous means more than one folder carries the expected label.
	Ambiguous
	// UnknownUltrasound means an ultrasound volume has none of the known acquisition tokens.
	UnknownUltrasound
	// BadName means a path does not follow the expected field layout.
	BadName
	// NoReference means the reference series of a segmentation was not found exactly once.
	NoReference
)

// String returns the string representation of a ViolationKind.
func (k ViolationKind) String() string {
	switch k {
	case NoMatch:
		return "no-match"
	case Ambiguous:
		return "ambiguous"
	case UnknownUltrasound:
		return "unknown-ultrasound"
	case BadName:
		return "bad-name"
	case NoReference:
		return "no-reference"
	default:
		return "unknown"
	}
}

// Violation reports a path that breaks the dataset naming conventions.
type Violation struct {
	Kind  ViolationKind
	Path  string
	Label string // the label, token or field that was looked for
	Count int    // number of candidates found, when relevant
}

func (v *Violation) Error() string {
	switch v.Kind {
	case NoMatch:
		return fmt.Sprintf("%s: cannot find %s folder", v.Path, v.Label)
	case Ambiguous:
		return fmt.Sprintf("%s: found %d %s folders, expected 1", v.Path, v.Count, v.Label)
	case UnknownUltrasound:
		return fmt.Sprintf("%s: US without being in (pre_dura, post_dura, pre_imri)", v.Path)
	case NoReference:
		return fmt.Sprintf("%s: found %d reference series for %q, expected 1", v.Path, v.Count, v.Label)
	default:
		return fmt.Sprintf("%s: does not match %s naming", v.Path, v.Label)
	}
}

// AsViolation unwraps err into a *Violation when it contains one.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
