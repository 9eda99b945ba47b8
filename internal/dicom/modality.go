package dicom

import "strings"

// Modality is a DICOM imaging modality code.
type Modality string

const (
	MR Modality = "MR" // Magnetic Resonance
	US Modality = "US" // Ultrasound
	OT Modality = "OT" // Other
)

// ModalityInfo holds the storage parameters of a modality.
type ModalityInfo struct {
	Modality    Modality
	SOPClassUID string
	// Window used when the volume range cannot be computed.
	WindowCenter float64
	WindowWidth  float64
}

var modalityTable = map[Modality]ModalityInfo{
	MR: {Modality: MR, SOPClassUID: "1.2.840.10008.5.1.4.1.1.4", WindowCenter: 500, WindowWidth: 1000},
	US: {Modality: US, SOPClassUID: "1.2.840.10008.5.1.4.1.1.6.1", WindowCenter: 128, WindowWidth: 256},
	OT: {Modality: OT, SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", WindowCenter: 128, WindowWidth: 256},
}

// Lookup returns the storage parameters of m, falling back to OT.
func Lookup(m Modality) ModalityInfo {
	if info, ok := modalityTable[Modality(strings.ToUpper(string(m)))]; ok {
		return info
	}
	return modalityTable[OT]
}
