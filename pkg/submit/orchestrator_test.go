package submit

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"regexp"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcervantes/foliofotos/pkg/drive"
	"github.com/jcervantes/foliofotos/pkg/fingerprint"
	"github.com/jcervantes/foliofotos/pkg/pdf"
	"github.com/jcervantes/foliofotos/pkg/pipeline"
	"github.com/jcervantes/foliofotos/pkg/session"
)

// upload records one call to the fake store's Upload.
type upload struct {
	folderID string
	filename string
	mime     string
	content  []byte
}

// fakeStore is an in-memory drive.Client for orchestrator tests.
type fakeStore struct {
	// fingerprint tags already "stored" in the submission folder
	tags map[string]struct{}

	uploads []upload

	ensureCalls int
	failEnsure  bool

	// fail the nth Upload call (1-based); 0 means never
	failUploadAt int
}

var _ drive.Client = (*fakeStore)(nil)

func (f *fakeStore) RootID(ctx context.Context) (string, error) {
	return "root-1", nil
}

func (f *fakeStore) EnsurePath(ctx context.Context, segments []string) (string, error) {

	f.ensureCalls++

	if f.failEnsure {
		return "", &drive.ErrorRemote{Operation: "ensure path", StatusCode: http.StatusUnauthorized, Message: "token rejected"}
	}

	return "folder-1", nil
}

func (f *fakeStore) Upload(ctx context.Context, folderID, filename string, b []byte, mime string) error {

	if f.failUploadAt > 0 && len(f.uploads)+1 == f.failUploadAt {
		return &drive.ErrorRemote{Operation: "upload", StatusCode: http.StatusBadGateway, Message: "remote unavailable"}
	}

	f.uploads = append(f.uploads, upload{folderID: folderID, filename: filename, mime: mime, content: b})

	return nil
}

func (f *fakeStore) ListFingerprintTags(ctx context.Context, folderID string) (map[string]struct{}, error) {

	if f.tags == nil {
		return map[string]struct{}{}, nil
	}

	return f.tags, nil
}

// testPhoto is a test helper which encodes a solid-color png of the given
// dimensions. Distinct colors produce distinct fingerprints.
func testPhoto(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func newOrchestrator(store drive.Client) Orchestrator {
	return New(store, pipeline.NewNormalizer(), pdf.NewAssembler(), "fotos_cotizaciones")
}

func TestSubmitInputErrors(t *testing.T) {

	store := &fakeStore{}
	o := newOrchestrator(store)

	ctx := context.Background()
	item := session.PhotoItem{Bytes: testPhoto(t, 10, 10, color.RGBA{A: 255}), Source: pipeline.SourceUpload}

	_, err := o.Submit(ctx, "25121-0FF480", []session.PhotoItem{item}, false, nil)
	require.ErrorIs(t, err, ErrInvalidFolio)

	_, err = o.Submit(ctx, "251215-0FF480", nil, false, nil)
	require.ErrorIs(t, err, ErrNoPhotos)

	// input errors must leave no side effects
	assert.Zero(t, store.ensureCalls)
	assert.Empty(t, store.uploads)
}

func TestSubmitEndToEnd(t *testing.T) {

	galleryPhoto := testPhoto(t, 200, 100, color.RGBA{R: 10, A: 255})
	cameraPhoto := testPhoto(t, 100, 200, color.RGBA{G: 10, A: 255})

	// the camera photo is already stored remotely
	store := &fakeStore{
		tags: map[string]struct{}{fingerprint.Fingerprint(cameraPhoto): {}},
	}
	o := newOrchestrator(store)

	items := []session.PhotoItem{
		{Bytes: galleryPhoto, Mime: "image/png", Name: "doc.png", Source: pipeline.SourceUpload},
		{Bytes: cameraPhoto, Mime: "image/png", Source: pipeline.SourceCamera},
	}

	outcome, err := o.Submit(context.Background(), " 251215-0ff480 ", items, false, nil)
	require.NoError(t, err)

	assert.Equal(t, "251215-0FF480", outcome.Folio)
	assert.Equal(t, 1, outcome.Uploaded)
	assert.Equal(t, 2, outcome.Processed)
	assert.True(t, outcome.PdfUploaded)
	assert.Empty(t, outcome.Warnings)
	assert.Len(t, outcome.Previews, 2)

	// exactly one new photo file and one pdf
	require.Len(t, store.uploads, 2)

	photoName := regexp.MustCompile(`^251215-0FF480_upload_\d{8}_\d{6}_\d{6}__sha256_[0-9a-f]{12}\.png$`)
	assert.Regexp(t, photoName, store.uploads[0].filename)
	assert.Equal(t, "image/png", store.uploads[0].mime)

	pdfName := regexp.MustCompile(`^251215-0FF480_fotos_\d{8}_\d{6}_\d{6}\.pdf$`)
	assert.Regexp(t, pdfName, store.uploads[1].filename)
	assert.Equal(t, "application/pdf", store.uploads[1].mime)

	// the duplicate still contributes a page to the document
	pages, err := api.PageCount(bytes.NewReader(store.uploads[1].content), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

func TestSubmitInRunDedup(t *testing.T) {

	photo := testPhoto(t, 50, 50, color.RGBA{B: 10, A: 255})

	store := &fakeStore{}
	o := newOrchestrator(store)

	// same bytes submitted twice in one submission
	items := []session.PhotoItem{
		{Bytes: photo, Mime: "image/png", Source: pipeline.SourceUpload},
		{Bytes: photo, Mime: "image/png", Source: pipeline.SourceCamera},
	}

	outcome, err := o.Submit(context.Background(), "251215-0FF480", items, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Uploaded)
	assert.Equal(t, 2, outcome.Processed)

	// one photo upload plus the pdf
	require.Len(t, store.uploads, 2)

	pages, err := api.PageCount(bytes.NewReader(store.uploads[1].content), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

func TestSubmitProvisioningFailure(t *testing.T) {

	store := &fakeStore{failEnsure: true}
	o := newOrchestrator(store)

	var last Progress
	item := session.PhotoItem{Bytes: testPhoto(t, 10, 10, color.RGBA{A: 255}), Source: pipeline.SourceUpload}

	_, err := o.Submit(context.Background(), "251215-0FF480", []session.PhotoItem{item}, false, func(p Progress) { last = p })
	require.Error(t, err)

	var remote *drive.ErrorRemote
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)

	// nothing uploaded, failure reported
	assert.Empty(t, store.uploads)
	assert.Equal(t, StateFailed, last.State)
}

func TestSubmitMidItemTransportFailure(t *testing.T) {

	store := &fakeStore{failUploadAt: 2}
	o := newOrchestrator(store)

	items := []session.PhotoItem{
		{Bytes: testPhoto(t, 20, 20, color.RGBA{R: 1, A: 255}), Mime: "image/png", Source: pipeline.SourceUpload},
		{Bytes: testPhoto(t, 20, 20, color.RGBA{R: 2, A: 255}), Mime: "image/png", Source: pipeline.SourceUpload},
	}

	var last Progress
	_, err := o.Submit(context.Background(), "251215-0FF480", items, false, func(p Progress) { last = p })
	require.Error(t, err)

	// the first upload is not rolled back
	require.Len(t, store.uploads, 1)
	assert.Equal(t, StateFailed, last.State)
}

func TestSubmitPdfFailureIsNonFatal(t *testing.T) {

	store := &fakeStore{}
	o := newOrchestrator(store)

	// undecodable bytes pass through normalization unchanged (fallback) and
	// upload fine, but cannot be paged into the pdf
	items := []session.PhotoItem{
		{Bytes: []byte("opaque heic blob"), Mime: "image/heic", Name: "capture.heic", Source: pipeline.SourceUpload},
	}

	outcome, err := o.Submit(context.Background(), "251215-0FF480", items, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Uploaded)
	assert.False(t, outcome.PdfUploaded)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "pdf assembly failed")

	// the photo upload still happened, no pdf upload followed
	require.Len(t, store.uploads, 1)
	assert.Regexp(t, `\.heic$`, store.uploads[0].filename)
}

func TestSubmitProgressReporting(t *testing.T) {

	store := &fakeStore{}
	o := newOrchestrator(store)

	items := []session.PhotoItem{
		{Bytes: testPhoto(t, 20, 20, color.RGBA{R: 1, A: 255}), Mime: "image/png", Source: pipeline.SourceUpload},
		{Bytes: testPhoto(t, 20, 20, color.RGBA{R: 2, A: 255}), Mime: "image/png", Source: pipeline.SourceCamera},
	}

	var reports []Progress
	_, err := o.Submit(context.Background(), "251215-0FF480", items, false, func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	// monotonically non-decreasing, 1.0 exactly at DONE
	prev := -1.0
	for _, p := range reports {
		assert.GreaterOrEqual(t, p.Ratio, prev, fmt.Sprintf("state %s", p.State))
		prev = p.Ratio

		// total steps = provisioning + one per item + pdf
		assert.Equal(t, 4, p.Total)
	}

	final := reports[len(reports)-1]
	assert.Equal(t, StateDone, final.State)
	assert.Equal(t, 1.0, final.Ratio)

	assert.Equal(t, StateProvisioning, reports[0].State)
}
