// Package measure computes shape descriptors for labelled blobs in a 2D slice.
package measure

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"fiberscan/internal/models"
)

// DegenerateSentinel replaces ConvexityPer and Roundness when a blob has zero perimeter
var DegenerateSentinel = math.Inf(1)

var (
	// ErrLabelNotFound is returned when the requested label has no pixels
	ErrLabelNotFound = errors.New("label not present in slice")

	// ErrDegenerateShape marks a blob whose perimeter is zero. Measure never
	// returns it; the affected ratios hold DegenerateSentinel instead.
	ErrDegenerateShape = errors.New("degenerate shape: zero perimeter")
)

// BBox is an axis aligned bounding box. Max bounds are exclusive.
type BBox struct {
	MinRow, MinCol, MaxRow, MaxCol int
}

// Rows returns the box height
func (b BBox) Rows() int { return b.MaxRow - b.MinRow }

// Cols returns the box width
func (b BBox) Cols() int { return b.MaxCol - b.MinCol }

// Point is a sub-pixel position in slice coordinates
type Point struct {
	Row, Col float64
}

// BlobRecord holds the descriptors of one blob in one slice.
// Slice and Count are filled in by the scanner; a record with Count == 0
// stands for a slice in which no blob was found.
type BlobRecord struct {
	// Slice is the index of the slice along the scan axis
	Slice int

	// Label is the blob label, unique only within its slice
	Label int32

	// Count is the number of blobs found in the slice
	Count int

	// Area is the number of pixels in the blob
	Area int

	// BBox is the bounding box in slice coordinates
	BBox BBox

	// Centroid is the mean pixel position
	Centroid Point

	// ConvexArea is the pixel count of ConvexImage
	ConvexArea int

	// ConvexImage is the rasterised convex hull over BBox, row-major
	ConvexImage []bool

	// MajorAxisLength and MinorAxisLength are the axes of the ellipse
	// with the same second moments as the blob
	MajorAxisLength float64
	MinorAxisLength float64

	// Eccentricity of that ellipse, 0 for a circle or a degenerate blob
	Eccentricity float64

	// Perimeter is the contour length estimate of the blob
	Perimeter float64

	// ConvexPerimeter is the contour length estimate of ConvexImage
	ConvexPerimeter float64

	Solidity      float64 // Area / ConvexArea
	ConvexityPer  float64 // ConvexPerimeter / Perimeter
	ConvexityArea float64 // ConvexArea / Area
	Roundness     float64 // 4*pi*Area / Perimeter^2

	// Degenerate is set when Perimeter is zero
	Degenerate bool
}

// DegenerateErr returns ErrDegenerateShape for a zero-perimeter blob and nil otherwise
func (r BlobRecord) DegenerateErr() error {
	if r.Degenerate {
		return fmt.Errorf("slice %d label %d: %w", r.Slice, r.Label, ErrDegenerateShape)
	}
	return nil
}

// blobPixels collects the pixel coordinates of one label
type blobPixels struct {
	rows []float64
	cols []float64
	bbox BBox
}

func (b *blobPixels) add(r, c int) {
	if len(b.rows) == 0 {
		b.bbox = BBox{MinRow: r, MinCol: c, MaxRow: r + 1, MaxCol: c + 1}
	} else {
		b.bbox.MinRow = min(b.bbox.MinRow, r)
		b.bbox.MinCol = min(b.bbox.MinCol, c)
		b.bbox.MaxRow = max(b.bbox.MaxRow, r+1)
		b.bbox.MaxCol = max(b.bbox.MaxCol, c+1)
	}
	b.rows = append(b.rows, float64(r))
	b.cols = append(b.cols, float64(c))
}

// Measure computes the descriptors of label id in labels
func Measure(labels models.LabelSlice, id int32) (BlobRecord, error) {
	if id <= 0 {
		return BlobRecord{}, fmt.Errorf("label %d: %w", id, ErrLabelNotFound)
	}
	var px blobPixels
	for r := 0; r < labels.Rows; r++ {
		for c := 0; c < labels.Cols; c++ {
			if labels.Data[r*labels.Cols+c] == id {
				px.add(r, c)
			}
		}
	}
	if len(px.rows) == 0 {
		return BlobRecord{}, fmt.Errorf("label %d: %w", id, ErrLabelNotFound)
	}
	return measurePixels(id, &px)
}

// MeasureAll measures labels 1..count in label order using a single pass over the slice
func MeasureAll(labels models.LabelSlice, count int) ([]BlobRecord, error) {
	if count <= 0 {
		return nil, nil
	}
	blobs := make([]blobPixels, count)
	for r := 0; r < labels.Rows; r++ {
		for c := 0; c < labels.Cols; c++ {
			l := int(labels.Data[r*labels.Cols+c])
			if l == 0 {
				continue
			}
			if l < 0 || l > count {
				return nil, fmt.Errorf("label %d at (%d, %d) outside 1..%d", l, r, c, count)
			}
			blobs[l-1].add(r, c)
		}
	}

	records := make([]BlobRecord, 0, count)
	for i := range blobs {
		if len(blobs[i].rows) == 0 {
			return nil, fmt.Errorf("label %d: %w", i+1, ErrLabelNotFound)
		}
		rec, err := measurePixels(int32(i+1), &blobs[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func measurePixels(id int32, px *blobPixels) (BlobRecord, error) {
	box := px.bbox
	h, w := box.Rows(), box.Cols()
	area := len(px.rows)

	// local mask over the bounding box
	mask := make([]bool, h*w)
	for i := range px.rows {
		r := int(px.rows[i]) - box.MinRow
		c := int(px.cols[i]) - box.MinCol
		mask[r*w+c] = true
	}

	rec := BlobRecord{
		Label:    id,
		Area:     area,
		BBox:     box,
		Centroid: Point{Row: stat.Mean(px.rows, nil), Col: stat.Mean(px.cols, nil)},
	}

	major, minor, ecc, err := inertiaAxes(px.rows, px.cols)
	if err != nil {
		return BlobRecord{}, fmt.Errorf("label %d: %w", id, err)
	}
	rec.MajorAxisLength = major
	rec.MinorAxisLength = minor
	rec.Eccentricity = ecc

	rec.ConvexImage = ConvexImage(mask, h, w)
	for _, v := range rec.ConvexImage {
		if v {
			rec.ConvexArea++
		}
	}

	rec.Perimeter = Perimeter(mask, h, w)
	rec.ConvexPerimeter = Perimeter(rec.ConvexImage, h, w)

	rec.Solidity = float64(area) / float64(rec.ConvexArea)
	rec.ConvexityArea = float64(rec.ConvexArea) / float64(area)
	if rec.Perimeter > 0 {
		rec.ConvexityPer = rec.ConvexPerimeter / rec.Perimeter
		rec.Roundness = 4 * math.Pi * float64(area) / (rec.Perimeter * rec.Perimeter)
	} else {
		rec.Degenerate = true
		rec.ConvexityPer = DegenerateSentinel
		rec.Roundness = DegenerateSentinel
	}
	return rec, nil
}

// inertiaAxes fits the ellipse with the same second central moments as the
// pixel set and returns its full axis lengths and eccentricity
func inertiaAxes(rows, cols []float64) (major, minor, ecc float64, err error) {
	n := float64(len(rows))
	if n < 2 {
		return 0, 0, 0, nil
	}
	// population moments, stat.Covariance is the unbiased estimator
	scale := (n - 1) / n
	crr := stat.Covariance(rows, rows, nil) * scale
	ccc := stat.Covariance(cols, cols, nil) * scale
	crc := stat.Covariance(rows, cols, nil) * scale

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{crr, crc, crc, ccc}), false); !ok {
		return 0, 0, 0, errors.New("inertia tensor eigen decomposition failed")
	}
	vals := eig.Values(nil) // ascending
	l1, l2 := vals[1], vals[0]
	if l1 < 0 {
		l1 = 0
	}
	// round-off on line shaped blobs
	if l2 < 1e-12*math.Max(l1, 1) {
		l2 = 0
	}
	major = 4 * math.Sqrt(l1)
	minor = 4 * math.Sqrt(l2)
	if l1 > 0 {
		ecc = math.Sqrt(1 - l2/l1)
	}
	return major, minor, ecc, nil
}
