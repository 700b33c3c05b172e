// Package visualization renders labelled slices of a scan as colour images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"fiberscan/pkg/measure"
	"fiberscan/pkg/scan"
)

// IndexOutOfRangeError is returned when a slice index is outside the scanned volume
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("slice index %d out of range [0, %d)", e.Index, e.Count)
}

// Background is the colour of unlabelled pixels
var Background = color.RGBA{0, 0, 0, 255}

// palette cycles through distinguishable colours; label l uses palette[(l-1)%len]
var palette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
	{210, 245, 60, 255},
	{250, 190, 212, 255},
	{0, 128, 128, 255},
	{220, 190, 255, 255},
	{170, 110, 40, 255},
	{255, 250, 200, 255},
	{128, 0, 0, 255},
	{170, 255, 195, 255},
}

// LabelColor returns the display colour for label. Label 0 is the background.
func LabelColor(label int32) color.RGBA {
	if label <= 0 {
		return Background
	}
	return palette[int(label-1)%len(palette)]
}

var (
	monoOnce sync.Once
	monoFont *truetype.Font
	monoErr  error
)

func loadMono() (*truetype.Font, error) {
	monoOnce.Do(func() {
		monoFont, monoErr = truetype.Parse(gomono.TTF)
	})
	return monoFont, monoErr
}

// Previewer draws the slices of one scan result
type Previewer struct {
	result *scan.ScanResult

	// scale is the number of output pixels per slice pixel
	scale int

	// overlay enables bounding boxes and label numbers
	overlay bool

	face font.Face
}

// PreviewOption configures a Previewer
type PreviewOption func(*Previewer)

// WithScale sets the number of output pixels per slice pixel
func WithScale(scale int) PreviewOption {
	return func(p *Previewer) {
		if scale >= 1 {
			p.scale = scale
		}
	}
}

// WithOverlay toggles bounding boxes and label numbers
func WithOverlay(enabled bool) PreviewOption {
	return func(p *Previewer) {
		p.overlay = enabled
	}
}

// NewPreviewer creates a previewer for result
func NewPreviewer(result *scan.ScanResult, opts ...PreviewOption) (*Previewer, error) {
	if result == nil {
		return nil, fmt.Errorf("previewer needs a scan result")
	}
	p := &Previewer{result: result, scale: 1}
	for _, opt := range opts {
		opt(p)
	}
	if p.overlay {
		f, err := loadMono()
		if err != nil {
			return nil, fmt.Errorf("error loading label font: %w", err)
		}
		size := float64(4 + 2*p.scale)
		p.face = truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull})
	}
	return p, nil
}

// NumSlices returns the number of slices that can be rendered
func (p *Previewer) NumSlices() int {
	return p.result.NumSlices()
}

// Slice renders slice index of the labelled volume
func (p *Previewer) Slice(index int) (image.Image, error) {
	if n := p.NumSlices(); index < 0 || index >= n {
		return nil, &IndexOutOfRangeError{Index: index, Count: n}
	}
	labels, err := p.result.LabelSlice(index)
	if err != nil {
		return nil, err
	}

	s := float64(p.scale)
	dc := gg.NewContext(labels.Cols*p.scale, labels.Rows*p.scale)
	dc.SetColor(Background)
	dc.Clear()

	for r := 0; r < labels.Rows; r++ {
		for c := 0; c < labels.Cols; c++ {
			l := labels.At(r, c)
			if l == 0 {
				continue
			}
			dc.SetColor(LabelColor(l))
			dc.DrawRectangle(float64(c)*s, float64(r)*s, s, s)
			dc.Fill()
		}
	}

	if p.overlay {
		p.drawOverlay(dc, p.result.RecordsForSlice(index))
	}
	return dc.Image(), nil
}

func (p *Previewer) drawOverlay(dc *gg.Context, records []measure.BlobRecord) {
	s := float64(p.scale)
	dc.SetFontFace(p.face)
	dc.SetLineWidth(1)
	for _, rec := range records {
		if rec.Count == 0 {
			continue
		}
		b := rec.BBox
		dc.SetColor(color.White)
		dc.DrawRectangle(float64(b.MinCol)*s+0.5, float64(b.MinRow)*s+0.5,
			float64(b.Cols())*s-1, float64(b.Rows())*s-1)
		dc.Stroke()
		dc.DrawStringAnchored(strconv.Itoa(int(rec.Label)),
			(rec.Centroid.Col+0.5)*s, (rec.Centroid.Row+0.5)*s, 0.5, 0.5)
	}
}

// SaveSlice renders slice index and writes it as a PNG file
func (p *Previewer) SaveSlice(index int, filename string) error {
	img, err := p.Slice(index)
	if err != nil {
		return err
	}
	return gg.SavePNG(filename, img)
}

// SaveSliceSequence writes every slice to outputDir as slice_<axis>_NNN.png
func (p *Previewer) SaveSliceSequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	axis := p.result.Axis.String()
	for i := 0; i < p.NumSlices(); i++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, i))
		if err := p.SaveSlice(i, filename); err != nil {
			return fmt.Errorf("error saving slice %d: %w", i, err)
		}
	}
	return nil
}

// Render draws slice index of result without overlay at one pixel per voxel
func Render(result *scan.ScanResult, index int) (image.Image, error) {
	p, err := NewPreviewer(result)
	if err != nil {
		return nil, err
	}
	return p.Slice(index)
}
