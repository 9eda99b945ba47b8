package config

// HelpText contains information about a wizard field.
type HelpText struct {
	Title       string
	Description string
	Details     string
}

// Texts contains help information for all wizard fields.
var Texts = map[string]HelpText{
	"study_date": {
		Title:       "STUDY DATE",
		Description: "StudyDate written on every exported study.",
		Details:     "Format: YYYYMMDD. Also the prefix of the study folders (19990101-Preop).",
	},
	"deidentification_method": {
		Title:       "DE-IDENTIFICATION METHOD",
		Description: "Value of DeidentificationMethod (0012,0063).",
		Details:     "Maximum 64 characters.",
	},
	"extra_clear_tags": {
		Title:       "EXTRA TAGS TO CLEAR",
		Description: "Additional tags emptied during de-identification.",
		Details:     "Comma separated DICOM keywords (e.g., InstitutionName, StationName).",
	},
	"on_violation": {
		Title:       "ON VIOLATION",
		Description: "What to do when a case breaks the naming conventions.",
		Details: `abort - stop the run at the first broken case
skip - log the case and continue with the next one`,
	},
	"pixelmed_jar": {
		Title:       "PIXELMED JAR",
		Description: "Path of pixelmed.jar.",
		Details:     "Downloaded before the run when missing.",
	},
	"java": {
		Title:       "JAVA",
		Description: "Java binary running the pixelmed converter.",
	},
	"img2seg": {
		Title:       "ITKIMAGE2SEGIMAGE",
		Description: "Path of dcmqi's itkimage2segimage binary.",
	},
	"template_dir": {
		Title:       "TEMPLATE DIRECTORY",
		Description: "Folder holding one <structure>.json segmentation template per structure.",
	},
	"corr_csv": {
		Title:       "CORRESPONDENCE CSV",
		Description: "File receiving the case to StudyInstanceUID table.",
	},
}

// describe returns the one-line description of a field with its details.
func describe(key string) string {
	t, ok := Texts[key]
	if !ok {
		return ""
	}
	if t.Details == "" {
		return t.Description
	}
	return t.Description + "\n" + t.Details
}
