// Package resample rescales binary volumes to isotropic voxel spacing.
package resample

import (
	"fmt"
	"math"

	"fiberscan/internal/models"
)

// InvalidSpacingError reports a spacing value that is not a positive finite number
type InvalidSpacingError struct {
	Dim   int
	Value float64
}

func (e *InvalidSpacingError) Error() string {
	return fmt.Sprintf("invalid spacing %v on dimension %d: must be positive", e.Value, e.Dim)
}

// ValidateSpacing returns an *InvalidSpacingError for the first bad value
func ValidateSpacing(spacing models.Spacing) error {
	for d, s := range spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return &InvalidSpacingError{Dim: d, Value: s}
		}
	}
	return nil
}

// Factors returns the zoom factor per dimension. The dimension with the
// smallest spacing is the reference and gets factor 1.
func Factors(spacing models.Spacing) ([3]float64, error) {
	if err := ValidateSpacing(spacing); err != nil {
		return [3]float64{}, err
	}
	ref := math.Min(spacing[0], math.Min(spacing[1], spacing[2]))
	return [3]float64{spacing[0] / ref, spacing[1] / ref, spacing[2] / ref}, nil
}

// OutputShape returns the shape produced by Isotropic. Every dimension is at least 1.
func OutputShape(shape [3]int, spacing models.Spacing) ([3]int, error) {
	f, err := Factors(spacing)
	if err != nil {
		return [3]int{}, err
	}
	var out [3]int
	for d := range shape {
		out[d] = int(math.Round(float64(shape[d]) * f[d]))
		if out[d] < 1 {
			out[d] = 1
		}
	}
	return out, nil
}

// sourceIndex maps every output coordinate of one dimension to its nearest
// input coordinate. The first and last samples are aligned, as in an order-0 zoom.
func sourceIndex(in, out int) []int {
	idx := make([]int, out)
	if out == 1 || in == 1 {
		return idx
	}
	step := float64(in-1) / float64(out-1)
	for o := range idx {
		src := int(math.Round(float64(o) * step))
		if src > in-1 {
			src = in - 1
		}
		idx[o] = src
	}
	return idx
}

// Isotropic resamples vol so that every voxel has the smallest of the given
// spacings along all three dimensions. Nearest-neighbour interpolation keeps
// the output strictly binary. The input is never modified.
func Isotropic(vol models.Volume, spacing models.Spacing) (models.Volume, error) {
	if len(vol.Data) != vol.Len() {
		return models.Volume{}, fmt.Errorf("volume data has %d voxels, shape %v needs %d", len(vol.Data), vol.Shape, vol.Len())
	}
	shape, err := OutputShape(vol.Shape, spacing)
	if err != nil {
		return models.Volume{}, err
	}
	if vol.Len() == 0 {
		return models.Volume{}, fmt.Errorf("cannot resample empty volume %v", vol.Shape)
	}
	if shape == vol.Shape {
		return vol.Clone(), nil
	}

	src0 := sourceIndex(vol.Shape[0], shape[0])
	src1 := sourceIndex(vol.Shape[1], shape[1])
	src2 := sourceIndex(vol.Shape[2], shape[2])

	out := models.NewVolume(shape[0], shape[1], shape[2])
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			base := (i*shape[1] + j) * shape[2]
			srcBase := (src0[i]*vol.Shape[1] + src1[j]) * vol.Shape[2]
			for k := 0; k < shape[2]; k++ {
				out.Data[base+k] = vol.Data[srcBase+src2[k]]
			}
		}
	}
	return out, nil
}
