package detect

import (
	"fmt"

	"fiberscan/internal/models"
	"fiberscan/pkg/config"
)

// Connectivity labels connected components of foreground pixels.
// Neighbors is 8 (edges and corners, the default) or 4 (edges only).
type Connectivity struct {
	Neighbors int
}

// Name returns the strategy tag
func (c *Connectivity) Name() string { return config.StrategyConnectivity }

// Validate checks the neighbourhood size
func (c *Connectivity) Validate() error {
	if c.neighbors() != 4 && c.neighbors() != 8 {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", c.Neighbors)
	}
	return nil
}

func (c *Connectivity) neighbors() int {
	if c.Neighbors == 0 {
		return 8
	}
	return c.Neighbors
}

// LabelSlice labels the connected components of slice
func (c *Connectivity) LabelSlice(slice models.BinarySlice) (models.LabelSlice, int, error) {
	if err := c.Validate(); err != nil {
		return models.LabelSlice{}, 0, err
	}
	labels, n := labelComponents(slice, c.neighbors())
	return labels, n, nil
}

// unionFind is a disjoint set forest over provisional labels
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) add() int {
	u.parent = append(u.parent, len(u.parent))
	return len(u.parent) - 1
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union keeps the smaller root so that roots follow raster order
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}

// labelComponents is a two-pass connected component labelling.
// Labels are assigned in raster discovery order starting at 1.
func labelComponents(slice models.BinarySlice, neighbors int) (models.LabelSlice, int) {
	rows, cols := slice.Rows, slice.Cols
	provisional := make([]int, rows*cols)

	// index 0 is reserved for background
	uf := newUnionFind(1)

	// already visited neighbours in raster order
	back := [][2]int{{0, -1}, {-1, 0}}
	if neighbors == 8 {
		back = append(back, [2]int{-1, -1}, [2]int{-1, 1})
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !slice.Data[r*cols+c] {
				continue
			}
			label := 0
			for _, d := range back {
				nr, nc := r+d[0], c+d[1]
				if nr < 0 || nc < 0 || nc >= cols {
					continue
				}
				nl := provisional[nr*cols+nc]
				if nl == 0 {
					continue
				}
				if label == 0 {
					label = nl
				} else {
					uf.union(label, nl)
				}
			}
			if label == 0 {
				label = uf.add()
			}
			provisional[r*cols+c] = label
		}
	}

	for i, p := range provisional {
		if p != 0 {
			provisional[i] = uf.find(p)
		}
	}
	labels, n := relabelRaster(rows, cols, provisional)
	return labels, n
}
