package models

// BinarySlice is a single 2D cross-section of a Volume
type BinarySlice struct {
	// Data holds the foreground flags in row-major order
	Data []bool

	// Rows and Cols are the dimensions of the slice
	Rows int
	Cols int
}

// NewBinarySlice allocates an all-background slice
func NewBinarySlice(rows, cols int) BinarySlice {
	return BinarySlice{
		Data: make([]bool, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// At reports whether the pixel at (r, c) is foreground. Out of range pixels are background.
func (s BinarySlice) At(r, c int) bool {
	if r < 0 || c < 0 || r >= s.Rows || c >= s.Cols {
		return false
	}
	return s.Data[r*s.Cols+c]
}

// Set marks the pixel at (r, c)
func (s BinarySlice) Set(r, c int, v bool) {
	s.Data[r*s.Cols+c] = v
}

// Foreground returns the number of foreground pixels
func (s BinarySlice) Foreground() int {
	n := 0
	for _, v := range s.Data {
		if v {
			n++
		}
	}
	return n
}

// LabelSlice is a 2D label image. 0 is background, k > 0 is blob k.
type LabelSlice struct {
	// Data holds the labels in row-major order
	Data []int32

	// Rows and Cols are the dimensions of the slice
	Rows int
	Cols int
}

// NewLabelSlice allocates an all-zero label slice
func NewLabelSlice(rows, cols int) LabelSlice {
	return LabelSlice{
		Data: make([]int32, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// At returns the label at (r, c), or 0 outside the slice
func (s LabelSlice) At(r, c int) int32 {
	if r < 0 || c < 0 || r >= s.Rows || c >= s.Cols {
		return 0
	}
	return s.Data[r*s.Cols+c]
}

// Set writes the label at (r, c)
func (s LabelSlice) Set(r, c int, v int32) {
	s.Data[r*s.Cols+c] = v
}

// Max returns the largest label present
func (s LabelSlice) Max() int32 {
	var m int32
	for _, v := range s.Data {
		if v > m {
			m = v
		}
	}
	return m
}
