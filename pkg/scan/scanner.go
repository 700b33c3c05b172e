// Package scan walks a volume slice by slice, labels the blobs of every
// slice and assembles the labelled volume together with the blob table.
package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"

	"fiberscan/internal/logger"
	"fiberscan/internal/models"
	"fiberscan/pkg/detect"
	"fiberscan/pkg/measure"
	"fiberscan/pkg/resample"
)

// State is the position of a Scanner in its lifecycle
type State int

const (
	// StateInit means no scan has started
	StateInit State = iota
	// StateScanning means slices are being processed
	StateScanning
	// StateDone means every slice was processed
	StateDone
	// StateCancelled means the context ended the scan early
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateScanning:
		return "scanning"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ProgressCallback is a function that reports progress during a scan
type ProgressCallback func(completed, total int)

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets how many slices are processed concurrently.
// Values below 1 fall back to one worker.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// WithLogger sets the logger entry used for per-slice diagnostics
func WithLogger(entry *log.Entry) Option {
	return func(s *Scanner) {
		if entry != nil {
			s.log = entry
		}
	}
}

// WithProgress registers a callback invoked after each slice. Calls come
// from worker goroutines but never overlap, and completed increases by one
// on every call.
func WithProgress(cb ProgressCallback) Option {
	return func(s *Scanner) {
		s.progress = cb
	}
}

// Scanner runs one blob detection strategy over every slice of a volume.
//
// The scan process consists of several steps per slice:
// 1. Extracting the 2D cross-section along the scan axis
// 2. Labelling its blobs with the detection strategy
// 3. Measuring the shape descriptors of every blob
// 4. Writing the labels into the labelled volume
//
// Slices are independent, so they are spread across workers. Each worker
// writes only the voxels of its own slice and the records are put back in
// slice order afterwards, so the result does not depend on the worker count.
type Scanner struct {
	strategy detect.Strategy
	workers  int
	log      *log.Entry
	progress ProgressCallback

	mu        sync.Mutex
	state     State
	completed int

	progressMu sync.Mutex
}

// NewScanner creates a scanner for strategy
func NewScanner(strategy detect.Strategy, opts ...Option) *Scanner {
	s := &Scanner{
		strategy: strategy,
		workers:  runtime.NumCPU(),
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the lifecycle state and the number of slices completed so far
func (s *Scanner) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.completed
}

// reportDone counts a finished slice and runs the progress callback.
// progressMu keeps callbacks serialised and their counts increasing, while
// State stays callable from inside the callback.
func (s *Scanner) reportDone(total int) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()

	s.mu.Lock()
	s.completed++
	done := s.completed
	s.mu.Unlock()

	if s.progress != nil {
		s.progress(done, total)
	}
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// sliceOutcome is what one worker produces for one slice
type sliceOutcome struct {
	records []measure.BlobRecord
	failure error
	done    bool
}

// Scan processes every slice of zoomed along axis. Configuration problems
// are returned before any slice is touched. If ctx is cancelled the result
// keeps the leading slices that completed and ctx.Err() is returned with it.
func (s *Scanner) Scan(ctx context.Context, zoomed models.Volume, axis models.Axis, spacing models.Spacing) (*ScanResult, error) {
	if s.strategy == nil {
		return nil, errors.New("scanner has no detection strategy")
	}
	if axis.Dim() < 0 {
		return nil, fmt.Errorf("invalid axis: %v", axis)
	}
	if zoomed.Len() == 0 || len(zoomed.Data) != zoomed.Len() {
		return nil, fmt.Errorf("volume shape %v does not match %d voxels", zoomed.Shape, len(zoomed.Data))
	}
	if err := s.strategy.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.strategy.Name(), err)
	}

	total := zoomed.NumSlices(axis)
	labels := models.NewLabeledVolume(zoomed.Shape)
	outcomes := make([]sliceOutcome, total)

	s.mu.Lock()
	s.state = StateScanning
	s.completed = 0
	s.mu.Unlock()

	entry := s.log.WithFields(log.Fields{"axis": axis.String(), "strategy": s.strategy.Name()})
	entry.Debugf("Scanning %d slices with %d workers", total, s.workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	numWorkers := min(s.workers, total)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = s.processSlice(entry, zoomed, axis, i, labels)
				s.reportDone(total)
			}
		}()
	}

feed:
	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	result := &ScanResult{
		Labels:   labels,
		Axis:     axis,
		Spacing:  spacing,
		Strategy: s.strategy.Name(),
	}
	for i := range outcomes {
		if !outcomes[i].done {
			break
		}
		result.Records = append(result.Records, outcomes[i].records...)
		if outcomes[i].failure != nil {
			result.Failures = append(result.Failures, SliceFailure{Slice: i, Err: outcomes[i].failure})
		}
		result.SlicesScanned++
	}

	if result.SlicesScanned < total {
		// drop slices finished out of order so labels and records agree
		rows, cols := models.SliceShape(zoomed.Shape, axis)
		empty := models.NewLabelSlice(rows, cols)
		for i := result.SlicesScanned; i < total; i++ {
			if outcomes[i].done {
				_ = labels.WriteSlice(axis, i, empty)
			}
		}
		s.setState(StateCancelled)
		err := ctx.Err()
		if err == nil {
			err = errors.New("scan stopped before all slices were processed")
		}
		entry.Warnf("Scan cancelled after %d of %d slices", result.SlicesScanned, total)
		return result, err
	}

	s.setState(StateDone)
	entry.Debugf("Scan finished: %d records, %d failed slices", len(result.Records), len(result.Failures))
	return result, nil
}

// processSlice labels and measures slice i. Detection errors are recovered
// into a zero-count record so that every slice appears in the table.
func (s *Scanner) processSlice(entry *log.Entry, vol models.Volume, axis models.Axis, i int, out models.LabeledVolume) sliceOutcome {
	entry = entry.WithField("slice", i)
	empty := sliceOutcome{records: []measure.BlobRecord{{Slice: i}}, done: true}

	slice, err := vol.Slice(axis, i)
	if err != nil {
		entry.Warnf("Failed to extract slice: %v", err)
		empty.failure = err
		return empty
	}

	labels, count, err := s.strategy.LabelSlice(slice)
	if err != nil {
		entry.Warnf("Blob detection failed: %v", err)
		empty.failure = err
		return empty
	}

	records, err := measure.MeasureAll(labels, count)
	if err != nil {
		entry.Warnf("Measurement failed: %v", err)
		empty.failure = err
		return empty
	}

	if err := out.WriteSlice(axis, i, labels); err != nil {
		entry.Warnf("Failed to store labels: %v", err)
		empty.failure = err
		return empty
	}

	if count == 0 {
		return empty
	}
	for r := range records {
		records[r].Slice = i
		records[r].Count = count
		if derr := records[r].DegenerateErr(); derr != nil {
			entry.Debugf("%v, ratios set to %v", derr, measure.DegenerateSentinel)
		}
	}
	return sliceOutcome{records: records, done: true}
}

// Pipeline resamples vol to isotropic spacing and scans it. Invalid spacing
// fails before any slice is processed.
func Pipeline(ctx context.Context, vol models.Volume, spacing models.Spacing, axis models.Axis, strategy detect.Strategy, opts ...Option) (*ScanResult, error) {
	zoomed, err := resample.Isotropic(vol, spacing)
	if err != nil {
		return nil, fmt.Errorf("failed to resample volume: %w", err)
	}

	// after resampling every voxel has the smallest input spacing
	iso := min(spacing[0], spacing[1], spacing[2])
	return NewScanner(strategy, opts...).Scan(ctx, zoomed, axis, models.Spacing{iso, iso, iso})
}
