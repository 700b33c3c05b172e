package scan

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"fiberscan/pkg/measure"
)

// CSVHeader is the fixed column order of the exported blob table
var CSVHeader = []string{
	"slice", "label", "count", "area",
	"bbox_min_row", "bbox_min_col", "bbox_max_row", "bbox_max_col",
	"centroid_row", "centroid_col",
	"convex_area", "major_axis_length", "minor_axis_length", "perimeter",
	"solidity", "convexity_per", "convexity_area", "roundness",
}

// formatFloat writes infinities as inf/-inf and NaN as nan
func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func csvRow(rec measure.BlobRecord) []string {
	itoa := strconv.Itoa
	return []string{
		itoa(rec.Slice), itoa(int(rec.Label)), itoa(rec.Count), itoa(rec.Area),
		itoa(rec.BBox.MinRow), itoa(rec.BBox.MinCol), itoa(rec.BBox.MaxRow), itoa(rec.BBox.MaxCol),
		formatFloat(rec.Centroid.Row), formatFloat(rec.Centroid.Col),
		itoa(rec.ConvexArea), formatFloat(rec.MajorAxisLength), formatFloat(rec.MinorAxisLength), formatFloat(rec.Perimeter),
		formatFloat(rec.Solidity), formatFloat(rec.ConvexityPer), formatFloat(rec.ConvexityArea), formatFloat(rec.Roundness),
	}
}

// WriteCSV writes the blob table, one row per record in result order
func (r *ScanResult) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, rec := range r.Records {
		if err := cw.Write(csvRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the blob table to path, creating parent directories
func (r *ScanResult) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteCSV(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
