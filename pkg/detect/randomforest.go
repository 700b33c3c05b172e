package detect

import (
	"fmt"
	"math"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"

	"fiberscan/internal/models"
	"fiberscan/pkg/config"
	"fiberscan/pkg/detect/forest"
	"fiberscan/pkg/measure"
)

// PairFeatureCount is the length of the feature vector built for each
// candidate pair of components
const PairFeatureCount = 8

// RandomForest corrects over-segmentation of an initial connectivity pass.
// Components separated by at most MaxGap background pixels are candidate
// pairs; a pre-trained forest scores each pair and pairs scoring at or
// above Threshold are merged into one blob.
type RandomForest struct {
	// Model is the fitted classifier. Its positive class means "merge".
	Model *forest.Forest

	// MaxGap is the largest number of background pixels between two
	// candidate components (Chebyshev distance minus one)
	MaxGap int

	// Threshold is the merge probability cut-off
	Threshold float64

	// Neighbors is the connectivity of the initial pass, 4 or 8
	Neighbors int
}

// Name returns the strategy tag
func (f *RandomForest) Name() string { return config.StrategyRandomForest }

// Validate checks that a usable model is attached
func (f *RandomForest) Validate() error {
	if f.Model == nil || len(f.Model.Trees) == 0 {
		return ErrModelNotLoaded
	}
	if err := f.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	}
	if f.Model.NumFeatures != PairFeatureCount {
		return fmt.Errorf("model expects %d features, pair vector has %d", f.Model.NumFeatures, PairFeatureCount)
	}
	if f.MaxGap < 0 {
		return fmt.Errorf("random forest maxGap must be >= 0, got %d", f.MaxGap)
	}
	if f.Threshold < 0 || f.Threshold > 1 {
		return fmt.Errorf("random forest threshold must be in [0, 1], got %v", f.Threshold)
	}
	return (&Connectivity{Neighbors: f.Neighbors}).Validate()
}

// component is one region of the initial pass
type component struct {
	pixels [][2]int
	rec    measure.BlobRecord
}

// LabelSlice labels slice and merges components the classifier pairs up
func (f *RandomForest) LabelSlice(slice models.BinarySlice) (models.LabelSlice, int, error) {
	if err := f.Validate(); err != nil {
		return models.LabelSlice{}, 0, err
	}

	initial, n := labelComponents(slice, (&Connectivity{Neighbors: f.Neighbors}).neighbors())
	if n < 2 {
		return initial, n, nil
	}

	comps, err := collectComponents(initial, n)
	if err != nil {
		return models.LabelSlice{}, 0, err
	}

	pairs := f.candidatePairs(initial, comps)

	uf := newUnionFind(n + 1)
	for _, p := range pairs {
		features := pairFeatures(comps[p.a], comps[p.b], p.gap)
		prob, err := f.Model.Predict(features)
		if err != nil {
			return models.LabelSlice{}, 0, fmt.Errorf("classify components %d and %d: %w", p.a+1, p.b+1, err)
		}
		if prob >= f.Threshold {
			uf.union(p.a+1, p.b+1)
		}
	}

	provisional := make([]int, len(initial.Data))
	for i, l := range initial.Data {
		if l != 0 {
			provisional[i] = uf.find(int(l))
		}
	}
	labels, count := relabelRaster(initial.Rows, initial.Cols, provisional)
	return labels, count, nil
}

func collectComponents(initial models.LabelSlice, n int) ([]component, error) {
	comps := make([]component, n)
	for i, l := range initial.Data {
		if l != 0 {
			comps[l-1].pixels = append(comps[l-1].pixels, [2]int{i / initial.Cols, i % initial.Cols})
		}
	}
	recs, err := measure.MeasureAll(initial, n)
	if err != nil {
		return nil, err
	}
	for i := range comps {
		comps[i].rec = recs[i]
	}
	return comps, nil
}

type candidatePair struct {
	a, b int // zero-based component indices, a < b
	gap  int
}

// candidatePairs finds component pairs within MaxGap. A flatbush index over
// the grown bounding boxes prunes the pixel-level distance checks.
func (f *RandomForest) candidatePairs(initial models.LabelSlice, comps []component) []candidatePair {
	reach := int32(f.MaxGap + 1)

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(comps))
	for _, c := range comps {
		b := c.rec.BBox
		fb.Add(int32(b.MinCol), int32(b.MinRow), int32(b.MaxCol-1), int32(b.MaxRow-1))
	}
	fb.Finish()

	var pairs []candidatePair
	for i, c := range comps {
		b := c.rec.BBox
		hits := fb.Search(int32(b.MinCol)-reach, int32(b.MinRow)-reach, int32(b.MaxCol-1)+reach, int32(b.MaxRow-1)+reach)
		sort.Ints(hits)
		for _, j := range hits {
			if j <= i {
				continue
			}
			if d, ok := chebyshevDistance(initial, c.pixels, int32(j+1), int(reach)); ok {
				pairs = append(pairs, candidatePair{a: i, b: j, gap: d - 1})
			}
		}
	}
	return pairs
}

// chebyshevDistance returns the smallest Chebyshev distance from any of
// pixels to a pixel labelled target, if it is at most reach
func chebyshevDistance(labels models.LabelSlice, pixels [][2]int, target int32, reach int) (int, bool) {
	best := reach + 1
	for _, p := range pixels {
		for dr := -reach; dr <= reach; dr++ {
			for dc := -reach; dc <= reach; dc++ {
				d := max(abs(dr), abs(dc))
				if d >= best || d == 0 {
					continue
				}
				if labels.At(p[0]+dr, p[1]+dc) == target {
					best = d
				}
			}
		}
		if best == 1 {
			break
		}
	}
	return best, best <= reach
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// elongation is minor/major axis length, 1 for blobs without extent
func elongation(rec measure.BlobRecord) float64 {
	if rec.MajorAxisLength == 0 {
		return 1
	}
	return rec.MinorAxisLength / rec.MajorAxisLength
}

// pairFeatures builds the classifier input for components a and b:
//
//	0 area ratio (smaller/larger)
//	1 centroid distance
//	2 gap in background pixels
//	3 solidity of a
//	4 solidity of b
//	5 solidity of the union
//	6 elongation of a
//	7 elongation of b
func pairFeatures(a, b component, gap int) []float64 {
	ra, rb := a.rec, b.rec
	small, large := float64(min(ra.Area, rb.Area)), float64(max(ra.Area, rb.Area))

	dr := ra.Centroid.Row - rb.Centroid.Row
	dc := ra.Centroid.Col - rb.Centroid.Col

	return []float64{
		small / large,
		math.Hypot(dr, dc),
		float64(gap),
		ra.Solidity,
		rb.Solidity,
		unionSolidity(a, b),
		elongation(ra),
		elongation(rb),
	}
}

// unionSolidity is the solidity the two components would have as one blob
func unionSolidity(a, b component) float64 {
	ba, bb := a.rec.BBox, b.rec.BBox
	box := measure.BBox{
		MinRow: min(ba.MinRow, bb.MinRow),
		MinCol: min(ba.MinCol, bb.MinCol),
		MaxRow: max(ba.MaxRow, bb.MaxRow),
		MaxCol: max(ba.MaxCol, bb.MaxCol),
	}
	h, w := box.Rows(), box.Cols()
	mask := make([]bool, h*w)
	for _, c := range []component{a, b} {
		for _, p := range c.pixels {
			mask[(p[0]-box.MinRow)*w+p[1]-box.MinCol] = true
		}
	}
	hull := measure.ConvexImage(mask, h, w)
	convexArea := 0
	for _, v := range hull {
		if v {
			convexArea++
		}
	}
	return float64(len(a.pixels)+len(b.pixels)) / float64(convexArea)
}
