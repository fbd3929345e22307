package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/rwcarlsen/goexif/exif"

	redraw "golang.org/x/image/draw"
)

const (
	// JpegQuality is the encode quality for derived preview/thumbnail images.
	JpegQuality int = 85

	// heuristicLongSide caps the longest side of the grayscale copy used to
	// score document orientation. Scoring full-size camera captures would be
	// wasted work; structure survives the downscale.
	heuristicLongSide int = 480
)

// readOrientation reads the EXIF orientation from the original image bytes and
// converts it to a rotation in degrees. Not all images carry EXIF data (png
// and gif typically do not), so a missing or unreadable block is not an
// error: it returns 0 degrees.
func readOrientation(b []byte) int {

	x, err := exif.Decode(bytes.NewReader(b))
	if err != nil || x == nil {
		return 0
	}

	if orient, ok := tagToInt(exif.Orientation, x); ok {
		return convertToDegrees(orient)
	}

	return 0
}

// tagToInt is a helper to convert exif tag values to ints
func tagToInt(tag exif.FieldName, x *exif.Exif) (int, bool) {

	if t, err := x.Get(tag); err == nil && t != nil {

		if i, err := t.Int(0); err == nil {
			return i, true
		}

		if num, den, err := t.Rat2(0); err == nil && den != 0 {
			return int(num / den), true
		}
	}

	return 0, false
}

// convertToDegrees converts EXIF orientation values to rotation in degrees.
func convertToDegrees(orientation int) int {
	// exif orientation -> rotation (clockwise).
	// mirror cases map to equivalent rotations here.
	switch orientation {
	case 1: // normal
		return 0
	case 2: // mirror horizontal
		return 0
	case 3: // rotate 180
		return 180
	case 4: // mirror vertical
		return 180
	case 5: // mirror horizontal + rotate 270 clockwise
		return 270
	case 6: // rotate 90 clockwise
		return 90
	case 7: // mirror horizontal + rotate 90 clockwise
		return 90
	case 8: // rotate 270 clockwise
		return 270
	default:
		return 0
	}
}

// rotateImage rotates an image based on the provided rotation in degrees.
func rotateImage(src image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 { // normalize degrees to [0, 360) -> accounts for negative degrees
	case 0:
		return src // no rotation needed
	case 90:
		return rotate90(src)
	case 180:
		return rotate180(src)
	case 270:
		return rotate270(src)
	default:
		return src // unsupported rotation, return original
	}
}

// rotate90 is a helper function to rotate an image 90 degrees clockwise.
func rotate90(src image.Image) image.Image {

	// get image bounds
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

// rotate180 is a helper function to rotate an image 180 degrees.
func rotate180(src image.Image) image.Image {

	// get image bounds
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, h-1-y, src.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}

	return dst
}

// rotate270 is a helper function to rotate an image 270 degrees clockwise.
func rotate270(src image.Image) image.Image {

	// get image bounds
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

// documentScore scores how document-like an image is in its current
// orientation: the variance of per-row mean intensities minus the variance of
// per-column mean intensities on a downscaled grayscale copy. Upright document
// photos alternate text lines and gaps down the page, so the row series
// varies more than the column series.
func documentScore(src image.Image) float64 {

	gray := grayscaleDownscale(src, heuristicLongSide)

	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	rowMeans := make([]float64, h)
	colSums := make([]float64, w)

	for y := 0; y < h; y++ {
		var rowSum float64
		for x := 0; x < w; x++ {
			v := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			rowSum += v
			colSums[x] += v
		}
		rowMeans[y] = rowSum / float64(w)
	}

	colMeans := make([]float64, w)
	for x := 0; x < w; x++ {
		colMeans[x] = colSums[x] / float64(h)
	}

	return variance(rowMeans) - variance(colMeans)
}

// variance is a helper which computes the population variance of a series.
func variance(series []float64) float64 {

	n := float64(len(series))
	if n == 0 {
		return 0
	}

	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range series {
		d := v - mean
		sq += d * d
	}

	return sq / n
}

// grayscaleDownscale converts the image to grayscale and scales it so the
// longest side is at most longSide pixels, using bilinear interpolation.
// Images already within bounds are converted without resampling.
func grayscaleDownscale(src image.Image, longSide int) *image.Gray {

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	longest := w
	if h > w {
		longest = h
	}

	dstW, dstH := w, h
	if longest > longSide && longest > 0 {
		scale := float64(longSide) / float64(longest)
		dstW = int(math.Round(float64(w) * scale))
		dstH = int(math.Round(float64(h) * scale))
	}

	scaled := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	redraw.BiLinear.Scale(scaled, scaled.Bounds(), src, bounds, redraw.Over, nil)

	gray := image.NewGray(scaled.Bounds())
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			gray.Set(x, y, color.GrayModel.Convert(scaled.At(x, y)))
		}
	}

	return gray
}

// ResizeImageToWidth is a helper which resizes the provided image to the
// specified width while maintaining aspect ratio and returns the resized image.
func ResizeImageToWidth(src image.Image, width int) image.Image {

	// validate width
	if width <= 0 {
		return src // return original image if invalid width
	}

	// get original dimensions
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return src // return original image if invalid dimensions
	}

	// validate resizing is necessary
	if w <= width {
		return src // return original image if already smaller than target width
	}

	// calculate the new width and height to maintain aspect ratio
	scale := float64(width) / float64(w)
	dstWidth := width
	dstHeight := int(math.Round(float64(h) * scale))

	// create a new image with the new dimensions
	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	redraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, redraw.Over, nil)

	return dst
}

// EncodeToJpeg is a helper which encodes the provided image to JPEG format
// with the specified quality and returns the encoded bytes.
func EncodeToJpeg(src image.Image, quality int) ([]byte, error) {

	// validate quality
	if quality < 1 || quality > 100 {
		quality = JpegQuality // set to default if invalid
	}

	// check if image has an alpha channel
	if hasAlphaChannel(src) {
		// flatten the image on a white background to remove transparency
		src = flattenOnWhite(src)
	}

	// encode the image to JPEG format
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image to JPEG: %v", err)
	}

	return buf.Bytes(), nil
}

// hasAlphaChannel checks if the provided image has an alpha channel
func hasAlphaChannel(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Alpha, *image.Alpha16:
		return true
	default:
		// treat images without the above as not having an alpha channel by default
		return false
	}
}

// flattenOnWhite flattens an image onto a white background, ie, it removes
// transparency (and any palette indirection) by compositing the image over a
// white canvas. The result is always opaque, so the png encoder writes plain
// truecolor with no alpha or palette channel.
func flattenOnWhite(src image.Image) image.Image {

	// get image bounds
	bounds := src.Bounds()

	dst := image.NewRGBA(bounds)

	// fill white into the destination image
	draw.Draw(dst, bounds, &image.Uniform{C: image.White}, image.Point{}, draw.Src)

	// composite the source image over the white background
	draw.Draw(dst, bounds, src, bounds.Min, draw.Over)

	return dst
}
