package scan

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiberscan/internal/models"
	"fiberscan/pkg/detect"
	"fiberscan/pkg/measure"
	"fiberscan/pkg/resample"
)

func fullVolume(d0, d1, d2 int) models.Volume {
	vol := models.NewVolume(d0, d1, d2)
	for i := range vol.Data {
		vol.Data[i] = true
	}
	return vol
}

func randomVolume(seed int64, d0, d1, d2 int, density float64) models.Volume {
	rng := rand.New(rand.NewSource(seed))
	vol := models.NewVolume(d0, d1, d2)
	for i := range vol.Data {
		vol.Data[i] = rng.Float64() < density
	}
	return vol
}

// TestEndToEndSingleSlice runs the smallest complete pipeline
func TestEndToEndSingleSlice(t *testing.T) {
	vol := fullVolume(3, 3, 1)

	result, err := Pipeline(context.Background(), vol, models.Spacing{1, 1, 1}, models.AxisXZ, &detect.Connectivity{Neighbors: 8})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NumSlices())
	assert.True(t, result.Complete())
	for _, v := range result.Labels.Data {
		assert.Equal(t, int32(1), v)
	}

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, 0, rec.Slice)
	assert.Equal(t, int32(1), rec.Label)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, 9, rec.Area)
	assert.Equal(t, measure.BBox{MinRow: 0, MinCol: 0, MaxRow: 3, MaxCol: 3}, rec.BBox)
	assert.Equal(t, 1.0, rec.Solidity)
	assert.Equal(t, "connectivity", result.Strategy)
}

func TestEmptySliceYieldsZeroCountRecord(t *testing.T) {
	vol := models.NewVolume(2, 2, 3)
	// slice 1 along xz holds a single voxel, slices 0 and 2 are empty
	vol.Set(0, 1, 1, true)

	result, err := NewScanner(&detect.Connectivity{}).Scan(context.Background(), vol, models.AxisXZ, models.Spacing{1, 1, 1})
	require.NoError(t, err)
	require.Len(t, result.Records, 3)

	for _, i := range []int{0, 2} {
		recs := result.RecordsForSlice(i)
		require.Len(t, recs, 1)
		assert.Equal(t, 0, recs[0].Count)
		assert.Equal(t, int32(0), recs[0].Label)
		assert.Equal(t, i, recs[0].Slice)
	}
	recs := result.RecordsForSlice(1)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Count)
	assert.Equal(t, 1, recs[0].Area)
}

// TestRecordsMatchObjectCounts checks total slice coverage and per-slice counts
func TestRecordsMatchObjectCounts(t *testing.T) {
	vol := randomVolume(11, 12, 10, 9, 0.3)
	for _, axis := range []models.Axis{models.AxisXY, models.AxisYZ, models.AxisXZ} {
		result, err := NewScanner(&detect.Connectivity{Neighbors: 4}, WithWorkers(3)).
			Scan(context.Background(), vol, axis, models.Spacing{1, 1, 1})
		require.NoError(t, err)

		prev := -1
		for i := 0; i < result.NumSlices(); i++ {
			recs := result.RecordsForSlice(i)
			require.NotEmpty(t, recs, "axis %v slice %d", axis, i)
			count := recs[0].Count
			if count == 0 {
				assert.Len(t, recs, 1)
			} else {
				assert.Len(t, recs, count)
			}
			for j, rec := range recs {
				assert.Equal(t, count, rec.Count)
				if count > 0 {
					assert.Equal(t, int32(j+1), rec.Label)
					assert.Greater(t, rec.Solidity, 0.0)
					assert.LessOrEqual(t, rec.Solidity, 1.0)
					assert.GreaterOrEqual(t, rec.ConvexArea, rec.Area)
					assert.LessOrEqual(t, rec.MinorAxisLength, rec.MajorAxisLength+1e-9)
				}
			}

			// labels in the volume agree with the table
			ls, err := result.LabelSlice(i)
			require.NoError(t, err)
			assert.Equal(t, int32(count), ls.Max())
		}
		for _, rec := range result.Records {
			assert.GreaterOrEqual(t, rec.Slice, prev)
			prev = rec.Slice
		}
	}
}

func TestScanIsDeterministicAcrossWorkerCounts(t *testing.T) {
	vol := randomVolume(5, 8, 16, 16, 0.45)
	strategies := []detect.Strategy{
		&detect.Connectivity{Neighbors: 8},
		&detect.DBSCAN{Eps: 1.5, MinPoints: 3},
	}
	for _, s := range strategies {
		first, err := NewScanner(s, WithWorkers(1)).Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
		require.NoError(t, err)
		again, err := NewScanner(s, WithWorkers(1)).Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
		require.NoError(t, err)
		parallel, err := NewScanner(s, WithWorkers(6)).Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
		require.NoError(t, err)

		assert.Equal(t, first.Labels.Data, again.Labels.Data, s.Name())
		assert.Equal(t, first.Records, again.Records, s.Name())
		assert.Equal(t, first.Labels.Data, parallel.Labels.Data, s.Name())
		assert.Equal(t, first.Records, parallel.Records, s.Name())
	}
}

func TestLabelsAreNotGloballyRenumbered(t *testing.T) {
	// two slices along xy, each with one blob: both are label 1
	vol := models.NewVolume(2, 3, 3)
	vol.Set(0, 0, 0, true)
	vol.Set(1, 2, 2, true)

	result, err := NewScanner(&detect.Connectivity{}).Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, int32(1), result.Labels.At(0, 0, 0))
	assert.Equal(t, int32(1), result.Labels.At(1, 2, 2))
}

// flakyStrategy fails on slices whose top-left pixel is set
type flakyStrategy struct {
	detect.Connectivity
}

func (f *flakyStrategy) LabelSlice(s models.BinarySlice) (models.LabelSlice, int, error) {
	if s.At(0, 0) {
		return models.LabelSlice{}, 0, errors.New("boom")
	}
	return f.Connectivity.LabelSlice(s)
}

func TestSliceFailureIsRecovered(t *testing.T) {
	vol := models.NewVolume(3, 4, 4)
	vol.Set(0, 2, 2, true)
	vol.Set(1, 0, 0, true) // slice 1 fails
	vol.Set(1, 1, 1, true)
	vol.Set(2, 3, 3, true)

	scanner := NewScanner(&flakyStrategy{})
	result, err := scanner.Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Slice)
	recs := result.RecordsForSlice(1)
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].Count)
	assert.Equal(t, 1, result.ObjectCount(0))
	assert.Equal(t, 1, result.ObjectCount(2))

	state, done := scanner.State()
	assert.Equal(t, StateDone, state)
	assert.Equal(t, 3, done)
}

func TestMissingModelFailsBeforeScanning(t *testing.T) {
	scanner := NewScanner(&detect.RandomForest{Threshold: 0.5})
	result, err := scanner.Scan(context.Background(), fullVolume(2, 2, 2), models.AxisXZ, models.Spacing{1, 1, 1})
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, detect.ErrModelNotLoaded))

	state, _ := scanner.State()
	assert.Equal(t, StateInit, state)
}

func TestPipelineRejectsInvalidSpacing(t *testing.T) {
	_, err := Pipeline(context.Background(), fullVolume(2, 2, 2), models.Spacing{1, 0, 1}, models.AxisXZ, &detect.Connectivity{})
	var spErr *resample.InvalidSpacingError
	assert.True(t, errors.As(err, &spErr))
}

func TestPipelineResamplesBeforeScanning(t *testing.T) {
	vol := fullVolume(2, 2, 2)
	result, err := Pipeline(context.Background(), vol, models.Spacing{1, 1, 2}, models.AxisXZ, &detect.Connectivity{})
	require.NoError(t, err)

	assert.Equal(t, [3]int{2, 2, 4}, result.Labels.Shape)
	assert.Equal(t, 4, result.NumSlices())
	assert.Equal(t, models.Spacing{1, 1, 1}, result.Spacing)
}

// cancellingStrategy cancels the scan when it sees a slice with exactly
// trigger foreground pixels
type cancellingStrategy struct {
	detect.Connectivity
	trigger int
	cancel  context.CancelFunc
}

func (c *cancellingStrategy) LabelSlice(s models.BinarySlice) (models.LabelSlice, int, error) {
	if s.Foreground() == c.trigger {
		c.cancel()
	}
	return c.Connectivity.LabelSlice(s)
}

func TestCancelledScanKeepsLeadingSlices(t *testing.T) {
	vol := models.NewVolume(10, 4, 4)
	for i := 0; i < 10; i++ {
		vol.Set(i, 0, 0, true)
	}
	// slice 2 is the only one with three foreground pixels
	vol.Set(2, 2, 2, true)
	vol.Set(2, 3, 3, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := NewScanner(&cancellingStrategy{trigger: 3, cancel: cancel}, WithWorkers(1))
	result, err := scanner.Scan(ctx, vol, models.AxisXY, models.Spacing{1, 1, 1})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.SlicesScanned)
	assert.False(t, result.Complete())
	assert.Equal(t, 2, result.Records[len(result.Records)-1].Slice)
	for i := 3; i < 10; i++ {
		assert.Equal(t, int32(0), result.Labels.At(i, 0, 0))
	}

	state, _ := scanner.State()
	assert.Equal(t, StateCancelled, state)
}

func TestProgressCallback(t *testing.T) {
	var calls []int
	scanner := NewScanner(&detect.Connectivity{}, WithWorkers(1), WithProgress(func(done, total int) {
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	}))
	_, err := scanner.Scan(context.Background(), fullVolume(4, 2, 2), models.AxisXY, models.Spacing{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)
}

func TestProgressIsOrderedAcrossWorkers(t *testing.T) {
	var scanner *Scanner
	var calls []int
	// calls is appended without a lock: overlapping callbacks would race
	scanner = NewScanner(&detect.Connectivity{}, WithWorkers(8), WithProgress(func(done, total int) {
		_, completed := scanner.State()
		assert.Equal(t, done, completed)
		calls = append(calls, done)
	}))

	vol := randomVolume(17, 40, 12, 12, 0.4)
	_, err := scanner.Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
	require.NoError(t, err)

	require.Len(t, calls, 40)
	for i, done := range calls {
		assert.Equal(t, i+1, done)
	}
}

func TestScanRejectsBadInput(t *testing.T) {
	scanner := NewScanner(&detect.Connectivity{})
	_, err := scanner.Scan(context.Background(), models.Volume{}, models.AxisXY, models.Spacing{1, 1, 1})
	assert.Error(t, err)

	_, err = scanner.Scan(context.Background(), fullVolume(1, 1, 1), models.Axis(9), models.Spacing{1, 1, 1})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	vol := models.NewVolume(1, 3, 4)
	vol.Set(0, 0, 0, true)
	vol.Set(0, 0, 1, true) // two-pixel blob has zero perimeter
	vol.Set(0, 2, 3, true)

	result, err := NewScanner(&detect.Connectivity{}).Scan(context.Background(), vol, models.AxisXY, models.Spacing{1, 1, 1})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.True(t, math.IsInf(result.Records[0].Roundness, 1))

	var buf bytes.Buffer
	require.NoError(t, result.WriteCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"0", "1", "2", "2"}, rows[1][:4])
	assert.Equal(t, "inf", rows[1][len(CSVHeader)-1])
	assert.Equal(t, "0", rows[2][0])
	assert.Equal(t, "2", rows[2][1])

	path := filepath.Join(t.TempDir(), "out", "blobs.csv")
	require.NoError(t, result.SaveCSV(path))
}
