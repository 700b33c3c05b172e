package models

import (
	"fmt"
	"strings"
)

// Spacing is the physical size of a voxel along each array dimension.
// All three values share the same unit (usually micrometres).
type Spacing [3]float64

// Axis selects the plane a volume is cut along
type Axis int

const (
	// AxisXY cuts along dimension 0: slice i is vol[i, :, :]
	AxisXY Axis = iota
	// AxisYZ cuts along dimension 1: slice i is vol[:, i, :]
	AxisYZ
	// AxisXZ cuts along dimension 2: slice i is vol[:, :, i]
	AxisXZ
)

// String returns the lower case plane name
func (a Axis) String() string {
	switch a {
	case AxisXY:
		return "xy"
	case AxisYZ:
		return "yz"
	case AxisXZ:
		return "xz"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Dim returns the array dimension that is iterated when scanning along a
func (a Axis) Dim() int {
	switch a {
	case AxisXY:
		return 0
	case AxisYZ:
		return 1
	case AxisXZ:
		return 2
	default:
		return -1
	}
}

// ParseAxis converts "xy", "yz" or "xz" (any case) into an Axis
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xy":
		return AxisXY, nil
	case "yz":
		return AxisYZ, nil
	case "xz":
		return AxisXZ, nil
	}
	return 0, fmt.Errorf("invalid axis: %q (must be xy, yz or xz)", s)
}

// Volume is a binary 3D segmentation mask.
// Data is stored in row-major order: index = (i*Shape[1]+j)*Shape[2]+k.
type Volume struct {
	// Data holds one foreground flag per voxel
	Data []bool

	// Shape is the number of voxels along each array dimension
	Shape [3]int
}

// NewVolume allocates an all-background volume
func NewVolume(d0, d1, d2 int) Volume {
	return Volume{
		Data:  make([]bool, d0*d1*d2),
		Shape: [3]int{d0, d1, d2},
	}
}

// Index returns the flat offset of voxel (i, j, k)
func (v Volume) Index(i, j, k int) int {
	return (i*v.Shape[1]+j)*v.Shape[2] + k
}

// At returns the voxel at (i, j, k)
func (v Volume) At(i, j, k int) bool {
	return v.Data[v.Index(i, j, k)]
}

// Set writes the voxel at (i, j, k)
func (v Volume) Set(i, j, k int, val bool) {
	v.Data[v.Index(i, j, k)] = val
}

// Len returns the total voxel count
func (v Volume) Len() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

// Clone returns a deep copy
func (v Volume) Clone() Volume {
	out := Volume{Shape: v.Shape, Data: make([]bool, len(v.Data))}
	copy(out.Data, v.Data)
	return out
}

// NumSlices returns how many slices a scan along axis visits
func (v Volume) NumSlices(axis Axis) int {
	d := axis.Dim()
	if d < 0 {
		return 0
	}
	return v.Shape[d]
}

// SliceShape returns the rows and cols of a slice cut along axis.
// Rows come from the lower remaining dimension.
func SliceShape(shape [3]int, axis Axis) (rows, cols int) {
	switch axis {
	case AxisXY:
		return shape[1], shape[2]
	case AxisYZ:
		return shape[0], shape[2]
	case AxisXZ:
		return shape[0], shape[1]
	}
	return 0, 0
}

// sliceOffset maps pixel (r, c) of slice index along axis to a flat volume offset
func sliceOffset(shape [3]int, axis Axis, index, r, c int) int {
	switch axis {
	case AxisXY:
		return (index*shape[1]+r)*shape[2] + c
	case AxisYZ:
		return (r*shape[1]+index)*shape[2] + c
	default:
		return (r*shape[1]+c)*shape[2] + index
	}
}

// Slice extracts a copy of slice index along axis
func (v Volume) Slice(axis Axis, index int) (BinarySlice, error) {
	if axis.Dim() < 0 {
		return BinarySlice{}, fmt.Errorf("invalid axis: %v", axis)
	}
	if index < 0 || index >= v.NumSlices(axis) {
		return BinarySlice{}, fmt.Errorf("slice %d out of range [0, %d)", index, v.NumSlices(axis))
	}

	rows, cols := SliceShape(v.Shape, axis)
	out := NewBinarySlice(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Data[r*cols+c] = v.Data[sliceOffset(v.Shape, axis, index, r, c)]
		}
	}
	return out, nil
}

// LabeledVolume holds per-slice blob labels for a scanned volume.
// Labels are only unique within a slice: the identity of a blob is (slice, label).
type LabeledVolume struct {
	// Data holds one label per voxel, same layout as Volume
	Data []int32

	// Shape matches the scanned volume
	Shape [3]int
}

// NewLabeledVolume allocates an all-background label volume
func NewLabeledVolume(shape [3]int) LabeledVolume {
	return LabeledVolume{
		Data:  make([]int32, shape[0]*shape[1]*shape[2]),
		Shape: shape,
	}
}

// At returns the label at voxel (i, j, k)
func (lv LabeledVolume) At(i, j, k int) int32 {
	return lv.Data[(i*lv.Shape[1]+j)*lv.Shape[2]+k]
}

// NumSlices returns how many slices exist along axis
func (lv LabeledVolume) NumSlices(axis Axis) int {
	d := axis.Dim()
	if d < 0 {
		return 0
	}
	return lv.Shape[d]
}

// WriteSlice stores labels as slice index along axis.
// Only the voxels of that slice are touched, so concurrent writers on
// different indices never overlap.
func (lv LabeledVolume) WriteSlice(axis Axis, index int, labels LabelSlice) error {
	rows, cols := SliceShape(lv.Shape, axis)
	if labels.Rows != rows || labels.Cols != cols {
		return fmt.Errorf("label slice is %dx%d, expected %dx%d", labels.Rows, labels.Cols, rows, cols)
	}
	if index < 0 || index >= lv.NumSlices(axis) {
		return fmt.Errorf("slice %d out of range [0, %d)", index, lv.NumSlices(axis))
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lv.Data[sliceOffset(lv.Shape, axis, index, r, c)] = labels.Data[r*cols+c]
		}
	}
	return nil
}

// Slice extracts a copy of slice index along axis
func (lv LabeledVolume) Slice(axis Axis, index int) (LabelSlice, error) {
	if axis.Dim() < 0 {
		return LabelSlice{}, fmt.Errorf("invalid axis: %v", axis)
	}
	if index < 0 || index >= lv.NumSlices(axis) {
		return LabelSlice{}, fmt.Errorf("slice %d out of range [0, %d)", index, lv.NumSlices(axis))
	}
	rows, cols := SliceShape(lv.Shape, axis)
	out := NewLabelSlice(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Data[r*cols+c] = lv.Data[sliceOffset(lv.Shape, axis, index, r, c)]
		}
	}
	return out, nil
}
