// Package morphology cleans binary volumes before they are scanned.
package morphology

import (
	"fiberscan/internal/models"
)

// Component is a 26-connected foreground region of a volume
type Component struct {
	// Voxels holds the flat offsets of the region, in discovery order
	Voxels []int
}

// Components returns all 26-connected foreground regions of vol in raster
// order of their first voxel
func Components(vol models.Volume) []Component {
	d0, d1, d2 := vol.Shape[0], vol.Shape[1], vol.Shape[2]
	visited := make([]bool, len(vol.Data))
	var comps []Component

	for start, v := range vol.Data {
		if !v || visited[start] {
			continue
		}
		visited[start] = true
		queue := []int{start}
		for q := 0; q < len(queue); q++ {
			idx := queue[q]
			i := idx / (d1 * d2)
			j := (idx / d2) % d1
			k := idx % d2
			for di := -1; di <= 1; di++ {
				ni := i + di
				if ni < 0 || ni >= d0 {
					continue
				}
				for dj := -1; dj <= 1; dj++ {
					nj := j + dj
					if nj < 0 || nj >= d1 {
						continue
					}
					for dk := -1; dk <= 1; dk++ {
						nk := k + dk
						if nk < 0 || nk >= d2 {
							continue
						}
						n := (ni*d1+nj)*d2 + nk
						if vol.Data[n] && !visited[n] {
							visited[n] = true
							queue = append(queue, n)
						}
					}
				}
			}
		}
		comps = append(comps, Component{Voxels: queue})
	}
	return comps
}

// RemoveSmallObjects clears every 26-connected component with fewer than
// minSize voxels. It returns a new volume and the number of components
// removed; minSize <= 1 returns an unchanged copy.
func RemoveSmallObjects(vol models.Volume, minSize int) (models.Volume, int) {
	out := vol.Clone()
	if minSize <= 1 {
		return out, 0
	}
	removed := 0
	for _, c := range Components(vol) {
		if len(c.Voxels) >= minSize {
			continue
		}
		for _, idx := range c.Voxels {
			out.Data[idx] = false
		}
		removed++
	}
	return out, removed
}
