package measure

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiberscan/internal/models"
)

// sliceFromRows builds a label slice from strings, '.' is background and a
// digit is that label
func sliceFromRows(rows ...string) models.LabelSlice {
	ls := models.NewLabelSlice(len(rows), len(rows[0]))
	for r, line := range rows {
		for c, ch := range line {
			if ch != '.' {
				ls.Set(r, c, int32(ch-'0'))
			}
		}
	}
	return ls
}

func TestMeasureFullSquare(t *testing.T) {
	rec, err := Measure(sliceFromRows("111", "111", "111"), 1)
	require.NoError(t, err)

	assert.Equal(t, 9, rec.Area)
	assert.Equal(t, BBox{0, 0, 3, 3}, rec.BBox)
	assert.Equal(t, Point{1, 1}, rec.Centroid)
	assert.Equal(t, 9, rec.ConvexArea)
	assert.InDelta(t, 1.0, rec.Solidity, 1e-12)
	assert.InDelta(t, 1.0, rec.ConvexityArea, 1e-12)
	assert.InDelta(t, 8.0, rec.Perimeter, 1e-12)
	assert.InDelta(t, 1.0, rec.ConvexityPer, 1e-12)
	assert.InDelta(t, 4*math.Pi*9/64, rec.Roundness, 1e-12)
	assert.InDelta(t, 4*math.Sqrt(2.0/3.0), rec.MajorAxisLength, 1e-9)
	assert.InDelta(t, rec.MajorAxisLength, rec.MinorAxisLength, 1e-9)
	assert.False(t, rec.Degenerate)
}

func TestMeasureSinglePixel(t *testing.T) {
	rec, err := Measure(sliceFromRows("...", ".1.", "..."), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Area)
	assert.Equal(t, BBox{1, 1, 2, 2}, rec.BBox)
	assert.Equal(t, 1.0, rec.Perimeter)
	assert.Equal(t, 0.0, rec.MajorAxisLength)
	assert.Equal(t, 0.0, rec.MinorAxisLength)
	// large but finite
	assert.InDelta(t, 4*math.Pi, rec.Roundness, 1e-12)
	assert.False(t, rec.Degenerate)
}

func TestMeasureLineHasZeroMinorAxis(t *testing.T) {
	rec, err := Measure(sliceFromRows("11111"), 1)
	require.NoError(t, err)

	assert.Equal(t, 0.0, rec.MinorAxisLength)
	assert.InDelta(t, 4*math.Sqrt2, rec.MajorAxisLength, 1e-9)
	assert.InDelta(t, 3.0, rec.Perimeter, 1e-12)
	assert.InDelta(t, 1.0, rec.Eccentricity, 1e-12)

	diag, err := Measure(sliceFromRows("1...", ".1..", "..1.", "...1"), 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, diag.MinorAxisLength)
	// the hull of the staircase corners also covers the pixels beside the diagonal
	assert.Equal(t, 10, diag.ConvexArea)
}

func TestMeasureZeroPerimeterUsesSentinel(t *testing.T) {
	rec, err := Measure(sliceFromRows("11"), 1)
	require.NoError(t, err)

	assert.Equal(t, 0.0, rec.Perimeter)
	assert.True(t, rec.Degenerate)
	assert.True(t, math.IsInf(rec.Roundness, 1))
	assert.True(t, math.IsInf(rec.ConvexityPer, 1))
	assert.True(t, errors.Is(rec.DegenerateErr(), ErrDegenerateShape))
}

func TestMeasureConcaveShape(t *testing.T) {
	rec, err := Measure(sliceFromRows(
		"111",
		"1..",
		"111",
	), 1)
	require.NoError(t, err)

	assert.Equal(t, 7, rec.Area)
	assert.Equal(t, 9, rec.ConvexArea)
	assert.InDelta(t, 7.0/9.0, rec.Solidity, 1e-12)
	assert.InDelta(t, 9.0/7.0, rec.ConvexityArea, 1e-12)
	assert.Len(t, rec.ConvexImage, 9)
	for _, v := range rec.ConvexImage {
		assert.True(t, v)
	}
}

func TestMeasureIgnoresOtherLabels(t *testing.T) {
	ls := sliceFromRows(
		"11..2",
		"11..2",
	)
	rec, err := Measure(ls, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Area)
	assert.Equal(t, BBox{0, 4, 2, 5}, rec.BBox)
	assert.Equal(t, Point{0.5, 4}, rec.Centroid)
}

func TestMeasureMissingLabel(t *testing.T) {
	_, err := Measure(sliceFromRows("1."), 2)
	assert.True(t, errors.Is(err, ErrLabelNotFound))

	_, err = Measure(sliceFromRows("1."), 0)
	assert.True(t, errors.Is(err, ErrLabelNotFound))
}

func TestMeasureAllOrder(t *testing.T) {
	ls := sliceFromRows(
		"1.2",
		"..2",
		"3..",
	)
	recs, err := MeasureAll(ls, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, int32(i+1), rec.Label)
	}
	assert.Equal(t, 2, recs[1].Area)

	// agrees with measuring one label at a time
	single, err := Measure(ls, 2)
	require.NoError(t, err)
	assert.Equal(t, single, recs[1])

	_, err = MeasureAll(ls, 2)
	assert.Error(t, err)
}

func TestDescriptorInvariantsOnRandomBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		ls := models.NewLabelSlice(12, 15)
		for i := range ls.Data {
			if rng.Float64() < 0.4 {
				ls.Data[i] = int32(1 + rng.Intn(3))
			}
		}
		// make sure every label exists
		ls.Data[0], ls.Data[1], ls.Data[2] = 1, 2, 3

		recs, err := MeasureAll(ls, 3)
		require.NoError(t, err)
		for _, rec := range recs {
			assert.Greater(t, rec.Solidity, 0.0)
			assert.LessOrEqual(t, rec.Solidity, 1.0)
			assert.GreaterOrEqual(t, rec.ConvexArea, rec.Area)
			assert.GreaterOrEqual(t, rec.ConvexityArea, 1.0)
			assert.LessOrEqual(t, rec.MinorAxisLength, rec.MajorAxisLength+1e-9)
			assert.GreaterOrEqual(t, rec.Perimeter, 0.0)
		}
	}
}

func TestPerimeterOfRectangle(t *testing.T) {
	mask := make([]bool, 4*6)
	for i := range mask {
		mask[i] = true
	}
	// 16 border pixels, corners and edges all weigh 1
	assert.InDelta(t, 16.0, Perimeter(mask, 4, 6), 1e-12)
}

func TestConvexImageTriangle(t *testing.T) {
	mask := []bool{
		true, false, false,
		true, true, false,
		true, true, true,
	}
	img := ConvexImage(mask, 3, 3)
	// centres of (0,1) and (1,2) lie on the hull edge through the outer corners
	want := []bool{
		true, true, false,
		true, true, true,
		true, true, true,
	}
	assert.Equal(t, want, img)
}

func TestConvexImageDiagonalPair(t *testing.T) {
	rec, err := Measure(sliceFromRows("1.", ".1"), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Area)
	assert.Equal(t, 4, rec.ConvexArea)
	assert.InDelta(t, 0.5, rec.Solidity, 1e-12)

	rec, err = Measure(sliceFromRows("1..", ".1.", "..1"), 1)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.ConvexArea)
}

func TestConvexImageStraightRuns(t *testing.T) {
	for _, rows := range [][]string{{"11"}, {"11111"}, {"1", "1", "1"}, {"1"}} {
		rec, err := Measure(sliceFromRows(rows...), 1)
		require.NoError(t, err)
		assert.Equal(t, rec.Area, rec.ConvexArea, "%v", rows)
		assert.InDelta(t, 1.0, rec.Solidity, 1e-12, "%v", rows)
	}
}
