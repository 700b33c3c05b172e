// Package detect partitions the foreground pixels of a 2D slice into blobs.
//
// Every strategy implements the same capability: given a binary slice,
// return a label image where each blob carries a label in 1..k and the
// background is 0, together with k. Labels are numbered in raster order of
// each blob's first pixel, so the output is deterministic for a given input.
package detect

import (
	"errors"
	"fmt"
	"strings"

	"fiberscan/internal/models"
	"fiberscan/pkg/config"
	"fiberscan/pkg/detect/forest"
)

// ErrModelNotLoaded is returned when the random forest strategy has no fitted classifier
var ErrModelNotLoaded = errors.New("random forest model not loaded")

// UnknownStrategyError reports an unrecognised strategy name
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown blob detection strategy %q (must be %s, %s or %s)",
		e.Name, config.StrategyConnectivity, config.StrategyDBSCAN, config.StrategyRandomForest)
}

// Strategy labels the blobs of a single slice
type Strategy interface {
	// Name returns the strategy tag
	Name() string

	// LabelSlice returns the label image and the number of blobs
	LabelSlice(slice models.BinarySlice) (models.LabelSlice, int, error)

	// Validate reports configuration problems before any slice is processed
	Validate() error
}

// New builds the strategy selected by cfg.Name. For the random forest
// strategy the model is loaded from cfg.RandomForest.ModelPath.
func New(cfg config.StrategyConfig) (Strategy, error) {
	var s Strategy
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case config.StrategyConnectivity:
		s = &Connectivity{Neighbors: cfg.Connectivity}
	case config.StrategyDBSCAN:
		s = &DBSCAN{Eps: cfg.DBSCAN.Eps, MinPoints: cfg.DBSCAN.MinPoints}
	case config.StrategyRandomForest:
		if cfg.RandomForest.ModelPath == "" {
			return nil, fmt.Errorf("strategy.randomForest.modelPath is empty: %w", ErrModelNotLoaded)
		}
		model, err := forest.Load(cfg.RandomForest.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
		}
		s = &RandomForest{
			Model:     model,
			MaxGap:    cfg.RandomForest.MaxGap,
			Threshold: cfg.RandomForest.Threshold,
			Neighbors: cfg.Connectivity,
		}
	default:
		return nil, &UnknownStrategyError{Name: cfg.Name}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// relabelRaster renumbers provisional labels to 1..k in raster order of
// first occurrence. Negative and zero provisional labels become background.
func relabelRaster(rows, cols int, provisional []int) (models.LabelSlice, int) {
	out := models.NewLabelSlice(rows, cols)
	mapping := make(map[int]int32)
	for i, p := range provisional {
		if p <= 0 {
			continue
		}
		l, ok := mapping[p]
		if !ok {
			l = int32(len(mapping) + 1)
			mapping[p] = l
		}
		out.Data[i] = l
	}
	return out, len(mapping)
}
