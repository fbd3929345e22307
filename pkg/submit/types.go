package submit

import "errors"

// input errors: reported immediately, block progression, fully recoverable by
// user correction, no partial side effects.
var (
	ErrInvalidFolio = errors.New("invalid folio format")
	ErrNoPhotos     = errors.New("no photos selected")
)

// State names the stage a submission is in. FAILED is reachable from any
// state; everything else advances linearly.
type State string

const (
	StateIdle          State = "IDLE"
	StateProvisioning  State = "PROVISIONING"
	StatePerItem       State = "PER_ITEM"
	StateAssemblingPdf State = "ASSEMBLING_PDF"
	StateUploadingPdf  State = "UPLOADING_PDF"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Progress is one step-wise progress report. Total steps = provisioning + one
// per selected item + the pdf step; Ratio is completed/total, monotonically
// non-decreasing, reaching 1.0 exactly at DONE.
type Progress struct {
	State State

	// 1-based index of the item being processed, only set in PER_ITEM
	Item int

	Completed int
	Total     int
	Ratio     float64
}

// ProgressFunc receives progress reports during a submission. May be nil.
type ProgressFunc func(Progress)

// Outcome is the result of a completed submission.
type Outcome struct {
	// the validated folio the submission ran under
	Folio string

	// count of newly uploaded photos; duplicates are excluded
	Uploaded int

	// count of all processed items including duplicates
	Processed int

	// false when the pdf step was skipped or failed
	PdfUploaded bool

	// non-fatal degradations, eg "photos uploaded, pdf failed"
	Warnings []string

	// normalized photo bytes for the confirmation screen previews
	Previews [][]byte
}
