package detect

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"fiberscan/internal/models"
	"fiberscan/pkg/config"
)

// DBSCAN clusters foreground pixel coordinates by density.
// Pixels classified as noise stay background; they never become singleton blobs.
type DBSCAN struct {
	// Eps is the neighbourhood radius in pixels
	Eps float64

	// MinPoints is the neighbourhood size, the point itself included,
	// required for a core point
	MinPoints int
}

// Name returns the strategy tag
func (d *DBSCAN) Name() string { return config.StrategyDBSCAN }

// Validate checks the clustering parameters
func (d *DBSCAN) Validate() error {
	if !(d.Eps > 0) {
		return fmt.Errorf("dbscan eps must be > 0, got %v", d.Eps)
	}
	if d.MinPoints < 1 {
		return fmt.Errorf("dbscan minPoints must be >= 1, got %d", d.MinPoints)
	}
	return nil
}

// pixelPoint is a foreground pixel in the kd-tree
type pixelPoint struct {
	Row, Col float64
	Idx      int
}

// Compare implements the kdtree.Comparable interface
func (p pixelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(pixelPoint)
	switch d {
	case 0:
		return p.Row - q.Row
	case 1:
		return p.Col - q.Col
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p pixelPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p pixelPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(pixelPoint)
	dr := p.Row - q.Row
	dc := p.Col - q.Col
	return dr*dr + dc*dc
}

// pixelPoints is a collection of pixelPoint that satisfies kdtree.Interface
type pixelPoints []pixelPoint

func (p pixelPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p pixelPoints) Len() int                              { return len(p) }
func (p pixelPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p pixelPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pixelPlane{pixelPoints: p, Dim: d}, kdtree.MedianOfRandoms(pixelPlane{pixelPoints: p, Dim: d}, 100))
}

// pixelPlane implements sort.Interface and kdtree.SortSlicer for pixelPoints
type pixelPlane struct {
	pixelPoints
	kdtree.Dim
}

func (p pixelPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.pixelPoints[i].Row < p.pixelPoints[j].Row
	case 1:
		return p.pixelPoints[i].Col < p.pixelPoints[j].Col
	default:
		panic("illegal dimension")
	}
}

func (p pixelPlane) Slice(start, end int) kdtree.SortSlicer {
	return pixelPlane{pixelPoints: p.pixelPoints[start:end], Dim: p.Dim}
}

func (p pixelPlane) Swap(i, j int) {
	p.pixelPoints[i], p.pixelPoints[j] = p.pixelPoints[j], p.pixelPoints[i]
}

const (
	unvisited = 0
	noise     = -1
)

// LabelSlice clusters the foreground pixels of slice
func (d *DBSCAN) LabelSlice(slice models.BinarySlice) (models.LabelSlice, int, error) {
	if err := d.Validate(); err != nil {
		return models.LabelSlice{}, 0, err
	}

	// points in raster order, Idx is the position in this slice
	fg := slice.Foreground()
	points := make(pixelPoints, 0, fg)
	offsets := make([]int, 0, fg)
	for i, v := range slice.Data {
		if v {
			points = append(points, pixelPoint{Row: float64(i / slice.Cols), Col: float64(i % slice.Cols), Idx: len(points)})
			offsets = append(offsets, i)
		}
	}
	if len(points) == 0 {
		return models.NewLabelSlice(slice.Rows, slice.Cols), 0, nil
	}

	// kdtree.New reorders its input
	treePoints := make(pixelPoints, len(points))
	copy(treePoints, points)
	tree := kdtree.New(treePoints, false)

	eps2 := d.Eps * d.Eps
	keeper := kdtree.NewDistKeeper(eps2)
	var buf []int
	// neighbours returns the sorted eps-neighbourhood of point i. The result
	// is only valid until the next call.
	neighbours := func(i int) []int {
		keeper.Heap = append(keeper.Heap[:0], kdtree.ComparableDist{Dist: eps2})
		tree.NearestSet(keeper, points[i])
		buf = buf[:0]
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			buf = append(buf, item.Comparable.(pixelPoint).Idx)
		}
		// heap order is arbitrary; sort so border points resolve deterministically
		sort.Ints(buf)
		return buf
	}

	cluster := make([]int, len(points))
	var queue []int
	next := 0
	for i := range points {
		if cluster[i] != unvisited {
			continue
		}
		seeds := neighbours(i)
		if len(seeds) < d.MinPoints {
			cluster[i] = noise
			continue
		}
		next++
		cluster[i] = next
		queue = claim(cluster, seeds, next, queue[:0])
		for q := 0; q < len(queue); q++ {
			if nb := neighbours(queue[q]); len(nb) >= d.MinPoints {
				queue = claim(cluster, nb, next, queue)
			}
		}
	}

	provisional := make([]int, slice.Rows*slice.Cols)
	for i, c := range cluster {
		if c > 0 {
			provisional[offsets[i]] = c
		}
	}
	labels, n := relabelRaster(slice.Rows, slice.Cols, provisional)
	return labels, n, nil
}

// claim assigns the unclaimed points of nb to cluster id. Noise points become
// border points of id; unvisited points are appended to queue for expansion.
// Every point is claimed once, so each is queued at most once.
func claim(cluster, nb []int, id int, queue []int) []int {
	for _, k := range nb {
		switch cluster[k] {
		case noise:
			cluster[k] = id
		case unvisited:
			cluster[k] = id
			queue = append(queue, k)
		}
	}
	return queue
}
