package scan

import (
	"fmt"
	"sort"

	"fiberscan/internal/models"
	"fiberscan/pkg/measure"
)

// SliceFailure records a slice whose detection failed and was replaced by a
// zero-count record
type SliceFailure struct {
	Slice int
	Err   error
}

func (f SliceFailure) Error() string {
	return fmt.Sprintf("slice %d: %v", f.Slice, f.Err)
}

// ScanResult is the terminal output of a scan. It is read-only once returned.
type ScanResult struct {
	// Labels holds per-slice labels; labels are only unique within a slice
	Labels models.LabeledVolume

	// Records are ordered by slice, then by label. Every scanned slice has
	// at least one record; a slice without blobs has a single record with Count 0.
	Records []measure.BlobRecord

	// Axis is the plane the volume was cut along
	Axis models.Axis

	// Spacing is the isotropic voxel spacing of the scanned volume
	Spacing models.Spacing

	// Strategy is the name of the blob detection strategy
	Strategy string

	// SlicesScanned is the number of leading slices covered by Records.
	// It is smaller than NumSlices only when the scan was cancelled.
	SlicesScanned int

	// Failures lists slices recovered after a detection error
	Failures []SliceFailure
}

// NumSlices returns the number of slices along the scan axis
func (r *ScanResult) NumSlices() int {
	return r.Labels.NumSlices(r.Axis)
}

// Complete reports whether every slice was scanned
func (r *ScanResult) Complete() bool {
	return r.SlicesScanned == r.NumSlices()
}

// RecordsForSlice returns the records of slice index. The returned slice
// aliases Records and must not be modified.
func (r *ScanResult) RecordsForSlice(index int) []measure.BlobRecord {
	lo := sort.Search(len(r.Records), func(i int) bool { return r.Records[i].Slice >= index })
	hi := sort.Search(len(r.Records), func(i int) bool { return r.Records[i].Slice > index })
	return r.Records[lo:hi]
}

// ObjectCount returns the number of blobs found in slice index
func (r *ScanResult) ObjectCount(index int) int {
	recs := r.RecordsForSlice(index)
	if len(recs) == 0 {
		return 0
	}
	return recs[0].Count
}

// LabelSlice returns a copy of the labels of slice index
func (r *ScanResult) LabelSlice(index int) (models.LabelSlice, error) {
	return r.Labels.Slice(r.Axis, index)
}
