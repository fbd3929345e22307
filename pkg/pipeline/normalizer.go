// Package pipeline normalizes photos ahead of upload: it decodes arbitrary
// image bytes, corrects orientation from EXIF metadata, optionally straightens
// mobile camera captures of documents, and re-encodes to the canonical
// lossless storage format.
package pipeline

import (
	"bytes"
	"image"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"

	// register decoders for the formats the intake accepts
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/jcervantes/foliofotos/internal/util"
)

const (
	// SourceUpload tags photos selected from the device gallery or filesystem.
	SourceUpload = "upload"

	// SourceCamera tags photos captured live with the device camera.
	SourceCamera = "camera"

	// CanonicalMime is the media type of normalized photo bytes.
	CanonicalMime = "image/png"

	// CanonicalSuffix is the file suffix of normalized photo bytes.
	CanonicalSuffix = ".png"
)

// Normalizer prepares photo bytes for storage and preview.
type Normalizer interface {

	// NormalizeForStorage decodes the photo, applies EXIF orientation, applies
	// the document auto-rotation heuristic for mobile camera captures, and
	// re-encodes to the canonical lossless format. It never fails: if the
	// bytes cannot be decoded they are returned unchanged with a best-guess
	// suffix so the orchestrator always receives storable bytes.
	NormalizeForStorage(b []byte, declaredMime, originalName, source string, mobile bool) (normalized []byte, mime, suffix string)

	// NormalizeForPreview runs the same decode and orientation correction but
	// returns the decoded image for display. Returns nil if no preview can be
	// produced; it never fails outward.
	NormalizeForPreview(b []byte, source string, mobile bool) image.Image
}

// NewNormalizer creates a new photo normalizer, returning a pointer to the
// concrete implementation.
func NewNormalizer() Normalizer {
	return &normalizer{
		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceFolioFotos)).
			With(slog.String(util.PackageKey, util.PackagePipeline)).
			With(slog.String(util.ComponentKey, util.ComponentNormalizer)),
	}
}

var _ Normalizer = (*normalizer)(nil)

// normalizer is the concrete implementation of the Normalizer interface.
type normalizer struct {
	logger *slog.Logger
}

// NormalizeForStorage is the concrete implementation of the interface method.
func (n *normalizer) NormalizeForStorage(b []byte, declaredMime, originalName, source string, mobile bool) ([]byte, string, string) {

	img := n.decodeUpright(b, source, mobile)
	if img == nil {
		// fall back to the original bytes unchanged; a decode failure must
		// never block the upload of what the user actually selected
		n.logger.Warn("failed to decode photo for normalization, storing original bytes",
			"declared_mime", declaredMime, "source", source)
		return b, fallbackMime(declaredMime), guessSuffix(declaredMime, originalName)
	}

	// composite onto white so the encoder writes plain 3-channel truecolor
	flat := flattenOnWhite(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		n.logger.Warn("failed to re-encode photo to png, storing original bytes", "err", err.Error())
		return b, fallbackMime(declaredMime), guessSuffix(declaredMime, originalName)
	}

	return buf.Bytes(), CanonicalMime, CanonicalSuffix
}

// NormalizeForPreview is the concrete implementation of the interface method.
func (n *normalizer) NormalizeForPreview(b []byte, source string, mobile bool) image.Image {
	return n.decodeUpright(b, source, mobile)
}

// decodeUpright is a helper which decodes the photo bytes and returns the
// image in its intended upright orientation: EXIF rotation first, then the
// document auto-rotation heuristic for mobile camera captures. Returns nil if
// the bytes cannot be decoded. Exists to share the decode path between the
// storage and preview variants.
func (n *normalizer) decodeUpright(b []byte, source string, mobile bool) image.Image {

	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil
	}

	// EXIF orientation is read from the original bytes; a missing or
	// unreadable block yields 0 degrees and the image passes through
	img = rotateImage(img, readOrientation(b))

	// document straightening only applies to live captures on handheld
	// devices; desktop webcam captures are left alone regardless of score
	if source == SourceCamera && mobile {
		rotated := rotate90(img)
		if documentScore(rotated) > documentScore(img) {
			// strictly greater required: ties keep the original orientation
			n.logger.Info("auto-rotating camera capture 90 degrees clockwise")
			img = rotated
		}
	}

	return img
}

// guessSuffix derives a best-guess file suffix for undecodable bytes from the
// declared media type, falling back to the original filename's extension,
// defaulting to .jpg.
func guessSuffix(declaredMime, originalName string) string {

	m := strings.ToLower(declaredMime)
	switch {
	case strings.Contains(m, "png"):
		return ".png"
	case strings.Contains(m, "heic"), strings.Contains(m, "heif"):
		return ".heic"
	case m != "":
		return ".jpg"
	}

	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" {
		return ext
	}

	return ".jpg"
}

// fallbackMime returns the media type reported for bytes stored unmodified.
func fallbackMime(declaredMime string) string {

	if declaredMime == "" {
		return "application/octet-stream"
	}

	return declaredMime
}
