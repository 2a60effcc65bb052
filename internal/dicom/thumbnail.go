package dicom

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // encapsulated baseline JPEG frames
	"math"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrNoPixelData is returned when a DICOM blob carries no decodable frame.
var ErrNoPixelData = errors.New("no pixel data")

// ThumbnailOptions controls RenderThumbnail.
type ThumbnailOptions struct {
	// Size bounds both sides of the thumbnail. Aspect ratio is kept.
	Size int
	// Label is drawn in the bottom left corner when non-empty.
	Label string
}

// Window is a VOI linear window.
type Window struct {
	Center float64
	Width  float64
}

// RenderThumbnail decodes the first frame of a DICOM blob and renders it as
// an 8-bit grayscale thumbnail. Grayscale frames are windowed with the file's
// Window Center/Width, else the modality's default preset, else the frame's
// value range.
func RenderThumbnail(data []byte, opts ThumbnailOptions) (*image.Gray, error) {
	if !IsDICOM(data) {
		return nil, ErrNotDICOM
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", opts.Size)
	}

	ds, err := parseTolerant(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	src, err := firstFrame(ds)
	if err != nil {
		return nil, err
	}

	var gray *image.Gray
	if g16, ok := src.(*image.Gray16); ok {
		gray = applyWindow(g16, rescaleOf(ds), windowOf(ds, g16))
	} else {
		gray = image.NewGray(src.Bounds())
		draw.Draw(gray, gray.Bounds(), src, src.Bounds().Min, draw.Src)
	}

	thumb := scaleToFit(gray, opts.Size)
	if opts.Label != "" {
		drawLabel(thumb, opts.Label)
	}
	return thumb, nil
}

func firstFrame(ds dicom.Dataset) (image.Image, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, ErrNoPixelData
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 || info.Frames[0] == nil {
		return nil, ErrNoPixelData
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

type rescale struct {
	slope, intercept float64
}

func rescaleOf(ds dicom.Dataset) rescale {
	r := rescale{slope: 1}
	if v, ok := floatValue(ds, tag.RescaleSlope); ok && v != 0 {
		r.slope = v
	}
	if v, ok := floatValue(ds, tag.RescaleIntercept); ok {
		r.intercept = v
	}
	return r
}

func windowOf(ds dicom.Dataset, img *image.Gray16) Window {
	center, okC := floatValue(ds, tag.WindowCenter)
	width, okW := floatValue(ds, tag.WindowWidth)
	if okC && okW && width > 0 {
		return Window{Center: center, Width: width}
	}
	if preset, ok := Modality(firstString(ds, tag.Modality)).DefaultWindow(); ok {
		return Window{Center: preset.Center, Width: preset.Width}
	}
	return rangeWindow(img, rescaleOf(ds))
}

// rangeWindow spans the full value range of img.
func rangeWindow(img *image.Gray16, r rescale) Window {
	lo, hi := math.Inf(1), math.Inf(-1)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.Gray16At(x, y).Y)*r.slope + r.intercept
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi <= lo {
		return Window{Center: lo, Width: 1}
	}
	return Window{Center: (lo + hi) / 2, Width: hi - lo}
}

func applyWindow(img *image.Gray16, r rescale, w Window) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	lower := w.Center - w.Width/2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.Gray16At(x, y).Y)*r.slope + r.intercept
			scaled := (v - lower) / w.Width * 255
			out.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, scaled)))})
		}
	}
	return out
}

// scaleToFit scales src so that its longest side equals size.
func scaleToFit(src *image.Gray, size int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewGray(image.Rect(0, 0, size, size))
	}
	if w >= h {
		h = max(1, h*size/w)
		w = size
	} else {
		w = max(1, w*size/h)
		h = size
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// drawLabel writes text in the bottom left corner, white with a black outline.
func drawLabel(img *image.Gray, text string) {
	face := basicfont.Face7x13
	b := img.Bounds()
	origin := fixed.P(b.Min.X+3, b.Max.Y-4)

	drawer := &font.Drawer{Dst: img, Face: face}
	drawer.Src = image.NewUniform(color.Gray{Y: 0})
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawer.Dot = origin.Add(fixed.P(dx, dy))
			drawer.DrawString(text)
		}
	}
	drawer.Src = image.NewUniform(color.Gray{Y: 255})
	drawer.Dot = origin
	drawer.DrawString(text)
}

func floatValue(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	raw := firstString(ds, t)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
