package dicom

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagName is a registry entry: the dictionary keyword of a tag and whether
// the converters write it themselves.
type TagName struct {
	Keyword string
	Tag     tag.Tag
	// Managed tags are rewritten on every export and cannot be cleared.
	Managed bool
}

// Tags written or cleared by the header patches.
var (
	TagScanningSequence       = tag.Tag{Group: 0x0018, Element: 0x0020}
	TagSequenceVariant        = tag.Tag{Group: 0x0018, Element: 0x0021}
	TagScanOptions            = tag.Tag{Group: 0x0018, Element: 0x0022}
	TagMRAcquisitionType      = tag.Tag{Group: 0x0018, Element: 0x0023}
	TagEchoTrainLength        = tag.Tag{Group: 0x0018, Element: 0x0091}
	TagLaterality             = tag.Tag{Group: 0x0020, Element: 0x0060}
	TagDeidentificationMethod = tag.Tag{Group: 0x0012, Element: 0x0063}
)

// registry is keyed by lowercase keyword.
var registry = map[string]TagName{
	// Tags rewritten on every export
	"patientname":            {Keyword: "PatientName", Tag: tag.PatientName, Managed: true},
	"patientid":              {Keyword: "PatientID", Tag: tag.PatientID, Managed: true},
	"studyinstanceuid":       {Keyword: "StudyInstanceUID", Tag: tag.StudyInstanceUID, Managed: true},
	"studyid":                {Keyword: "StudyID", Tag: tag.StudyID, Managed: true},
	"studydate":              {Keyword: "StudyDate", Tag: tag.StudyDate, Managed: true},
	"studydescription":       {Keyword: "StudyDescription", Tag: tag.StudyDescription, Managed: true},
	"modality":               {Keyword: "Modality", Tag: tag.Modality, Managed: true},
	"seriesdescription":      {Keyword: "SeriesDescription", Tag: tag.SeriesDescription, Managed: true},
	"seriesnumber":           {Keyword: "SeriesNumber", Tag: tag.SeriesNumber, Managed: true},
	"deidentificationmethod": {Keyword: "DeidentificationMethod", Tag: TagDeidentificationMethod, Managed: true},
	"rescaletype":            {Keyword: "RescaleType", Tag: tag.RescaleType, Managed: true},
	"windowcenter":           {Keyword: "WindowCenter", Tag: tag.WindowCenter, Managed: true},
	"windowwidth":            {Keyword: "WindowWidth", Tag: tag.WindowWidth, Managed: true},

	// Acquisition tags the MR patch fills or blanks
	"scanningsequence":  {Keyword: "ScanningSequence", Tag: TagScanningSequence, Managed: true},
	"sequencevariant":   {Keyword: "SequenceVariant", Tag: TagSequenceVariant, Managed: true},
	"scanoptions":       {Keyword: "ScanOptions", Tag: TagScanOptions, Managed: true},
	"mracquisitiontype": {Keyword: "MRAcquisitionType", Tag: TagMRAcquisitionType, Managed: true},
	"repetitiontime":    {Keyword: "RepetitionTime", Tag: tag.RepetitionTime, Managed: true},
	"echotime":          {Keyword: "EchoTime", Tag: tag.EchoTime, Managed: true},
	"echotrainlength":   {Keyword: "EchoTrainLength", Tag: TagEchoTrainLength, Managed: true},
	"laterality":        {Keyword: "Laterality", Tag: TagLaterality, Managed: true},

	// Free text that may still identify a site or a person
	"patientbirthdate":       {Keyword: "PatientBirthDate", Tag: tag.PatientBirthDate},
	"patientsex":             {Keyword: "PatientSex", Tag: tag.PatientSex},
	"institutionname":        {Keyword: "InstitutionName", Tag: tag.InstitutionName},
	"referringphysicianname": {Keyword: "ReferringPhysicianName", Tag: tag.ReferringPhysicianName},
	"operatorsname":          {Keyword: "OperatorsName", Tag: tag.OperatorsName},
	"accessionnumber":        {Keyword: "AccessionNumber", Tag: tag.AccessionNumber},
	"stationname":            {Keyword: "StationName", Tag: tag.StationName},
	"protocolname":           {Keyword: "ProtocolName", Tag: tag.ProtocolName},
	"sequencename":           {Keyword: "SequenceName", Tag: tag.SequenceName},
	"bodypartexamined":       {Keyword: "BodyPartExamined", Tag: tag.BodyPartExamined},
	"manufacturer":           {Keyword: "Manufacturer", Tag: tag.Manufacturer},
	"manufacturermodelname":  {Keyword: "ManufacturerModelName", Tag: tag.ManufacturerModelName},
}

// LookupTag finds a tag by keyword, ignoring case and surrounding blanks.
// An unknown keyword yields an error naming the closest registered one.
func LookupTag(keyword string) (TagName, error) {
	key := strings.ToLower(strings.TrimSpace(keyword))
	if tn, ok := registry[key]; ok {
		return tn, nil
	}
	if guess := closestKeyword(key); guess != "" {
		return TagName{}, fmt.Errorf("unknown tag %q, did you mean %q?", keyword, guess)
	}
	return TagName{}, fmt.Errorf("unknown tag %q", keyword)
}

// ResolveTags looks up the keywords of tags to clear. Unknown and managed
// tags are rejected.
func ResolveTags(keywords []string) ([]tag.Tag, error) {
	tags := make([]tag.Tag, 0, len(keywords))
	for _, k := range keywords {
		tn, err := LookupTag(k)
		if err != nil {
			return nil, err
		}
		if tn.Managed {
			return nil, fmt.Errorf("tag %s is written by the exporter and cannot be cleared", tn.Keyword)
		}
		tags = append(tags, tn.Tag)
	}
	return tags, nil
}

// closestKeyword returns the registered keyword nearest to key, or "" when
// none is within maxEdits.
func closestKeyword(key string) string {
	const maxEdits = 5
	best, bestEdits := "", maxEdits+1
	for k, tn := range registry {
		d := editDistance(key, k)
		if d < bestEdits || (d == bestEdits && tn.Keyword < best) {
			best, bestEdits = tn.Keyword, d
		}
	}
	return best
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
