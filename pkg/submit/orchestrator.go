// Package submit sequences one intake submission end to end: folder
// provisioning, per-photo normalization, dedup and upload, pdf assembly, and
// step-wise progress reporting. One submission runs to completion or failure
// before another can start; there is no parallel upload and no automatic
// retry. Re-submission after a partial failure is safe because fingerprint
// dedup skips everything already stored.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcervantes/foliofotos/internal/util"
	"github.com/jcervantes/foliofotos/pkg/drive"
	"github.com/jcervantes/foliofotos/pkg/fingerprint"
	"github.com/jcervantes/foliofotos/pkg/folio"
	"github.com/jcervantes/foliofotos/pkg/pdf"
	"github.com/jcervantes/foliofotos/pkg/pipeline"
	"github.com/jcervantes/foliofotos/pkg/session"
)

// Orchestrator runs intake submissions.
type Orchestrator interface {

	// Submit runs one submission: validates the folio, provisions the remote
	// folder, processes each pending photo in order, uploads the assembled
	// pdf, and reports progress along the way. Transport errors are fatal to
	// the remaining steps; photos already uploaded stay uploaded. Pdf
	// assembly or upload failure degrades to a warning on the outcome.
	Submit(ctx context.Context, rawFolio string, items []session.PhotoItem, mobile bool, onProgress ProgressFunc) (*Outcome, error)
}

// New creates a new submission orchestrator, returning a pointer to the
// concrete implementation. baseFolder is the fixed remote folder all
// submission folders are created under.
func New(store drive.Client, normalizer pipeline.Normalizer, assembler pdf.Assembler, baseFolder string) Orchestrator {
	return &orchestrator{
		store:      store,
		normalizer: normalizer,
		assembler:  assembler,
		baseFolder: baseFolder,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceFolioFotos)).
			With(slog.String(util.PackageKey, util.PackageSubmit)).
			With(slog.String(util.ComponentKey, util.ComponentOrchestrator)),
	}
}

var _ Orchestrator = (*orchestrator)(nil)

// orchestrator is the concrete implementation of the Orchestrator interface.
type orchestrator struct {
	store      drive.Client
	normalizer pipeline.Normalizer
	assembler  pdf.Assembler
	baseFolder string

	logger *slog.Logger
}

// Submit is the concrete implementation of the interface method.
func (o *orchestrator) Submit(ctx context.Context, rawFolio string, items []session.PhotoItem, mobile bool, onProgress ProgressFunc) (*Outcome, error) {

	// input errors block progression before any side effect
	f := folio.Normalize(rawFolio)
	if !folio.IsValid(f) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFolio, rawFolio)
	}

	if len(items) == 0 {
		return nil, ErrNoPhotos
	}

	// provisioning + one step per item + the pdf step
	total := 1 + len(items) + 1
	completed := 0

	report := func(state State, item int) {
		if onProgress != nil {
			onProgress(Progress{
				State:     state,
				Item:      item,
				Completed: completed,
				Total:     total,
				Ratio:     float64(completed) / float64(total),
			})
		}
	}

	report(StateProvisioning, 0)

	registry, folderID, err := o.provision(ctx, f)
	if err != nil {
		report(StateFailed, 0)
		return nil, fmt.Errorf("failed to provision folder for folio %s: %w", f, err)
	}
	completed++

	outcome := &Outcome{Folio: f}

	// normalized bytes collected for the pdf; duplicates still get a page
	pdfImages := make([][]byte, 0, len(items))

	for i, item := range items {
		report(StatePerItem, i+1)

		normalized, mime, suffix := o.normalizer.NormalizeForStorage(item.Bytes, item.Mime, item.Name, item.Source, mobile)
		pdfImages = append(pdfImages, normalized)
		outcome.Previews = append(outcome.Previews, normalized)

		// fingerprint of the original bytes, not the re-encode, so the same
		// source photo dedups no matter how normalization evolves
		tag := fingerprint.Fingerprint(item.Bytes)

		if registry.IsNew(tag) {
			filename := photoFilename(f, item.Source, tag, suffix)
			if err := o.store.Upload(ctx, folderID, filename, normalized, mime); err != nil {
				report(StateFailed, i+1)
				return nil, fmt.Errorf("failed to upload photo %d of %d: %w", i+1, len(items), err)
			}
			outcome.Uploaded++
		} else {
			o.logger.Info(fmt.Sprintf("skipping duplicate photo %d of %d", i+1, len(items)), "fingerprint", tag)
		}

		outcome.Processed++
		completed++
	}

	report(StateAssemblingPdf, 0)

	// pdf trouble never fails a submission whose photos are already stored
	if doc, err := o.assembler.Assemble(pdfImages); err != nil {
		o.logger.Warn(fmt.Sprintf("pdf assembly failed for folio %s: %v", f, err))
		outcome.Warnings = append(outcome.Warnings, "photos uploaded, pdf assembly failed")
	} else {
		report(StateUploadingPdf, 0)
		if err := o.store.Upload(ctx, folderID, pdfFilename(f), doc, "application/pdf"); err != nil {
			o.logger.Warn(fmt.Sprintf("pdf upload failed for folio %s: %v", f, err))
			outcome.Warnings = append(outcome.Warnings, "photos uploaded, pdf upload failed")
		} else {
			outcome.PdfUploaded = true
		}
	}
	completed++

	report(StateDone, 0)

	o.logger.Info(fmt.Sprintf("submission complete for folio %s", f),
		"processed", outcome.Processed, "uploaded", outcome.Uploaded, "pdf", outcome.PdfUploaded)

	return outcome, nil
}

// provision is a helper which ensures the submission folder exists and
// pre-populates the dedup registry from its current listing. Exists to keep
// the fatal provisioning stage in one place.
func (o *orchestrator) provision(ctx context.Context, f string) (*fingerprint.Registry, string, error) {

	folderID, err := o.store.EnsurePath(ctx, []string{o.baseFolder, f})
	if err != nil {
		return nil, "", err
	}

	tags, err := o.store.ListFingerprintTags(ctx, folderID)
	if err != nil {
		return nil, "", err
	}

	existing := make([]string, 0, len(tags))
	for tag := range tags {
		existing = append(existing, tag)
	}

	return fingerprint.NewRegistry(existing), folderID, nil
}

// photoFilename builds the stored filename for a photo. The embedded
// fingerprint tag is the durable dedup key scanned on subsequent runs, so the
// format is a contract with previously uploaded files.
func photoFilename(f, source, tag, suffix string) string {
	return fmt.Sprintf("%s_%s_%s__sha256_%s%s", f, source, timestamp(), tag, suffix)
}

// pdfFilename builds the stored filename for the assembled document.
func pdfFilename(f string) string {
	return fmt.Sprintf("%s_fotos_%s.pdf", f, timestamp())
}

// timestamp formats the current time to second precision plus microseconds,
// matching the naming convention of files already in the remote store.
func timestamp() string {
	now := time.Now()
	return now.Format("20060102_150405") + fmt.Sprintf("_%06d", now.Nanosecond()/1000)
}
