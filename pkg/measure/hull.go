package measure

import "sort"

type hullPoint struct {
	x, y float64
}

func cross(o, a, b hullPoint) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull returns the hull vertices in counter-clockwise order with
// collinear points removed (Andrew's monotone chain)
func convexHull(pts []hullPoint) []hullPoint {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]hullPoint, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})

	hull := make([]hullPoint, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

const hullEps = 1e-9

// insideHull reports whether p lies inside or on the boundary of the
// counter-clockwise polygon hull
func insideHull(hull []hullPoint, p hullPoint) bool {
	if len(hull) < 3 {
		return false
	}
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		if cross(a, b, p) < -hullEps {
			return false
		}
	}
	return true
}

// pixelCorners are the offsets from a pixel centre to its four corners
var pixelCorners = [4]hullPoint{{-0.5, -0.5}, {-0.5, 0.5}, {0.5, -0.5}, {0.5, 0.5}}

// ConvexImage returns the pixels of a rows x cols grid whose centres lie
// inside or on the convex hull of the foreground pixels of mask. The hull is
// taken over pixel corners, so it covers every foreground pixel as a unit
// square and a diagonal staircase is not convex.
func ConvexImage(mask []bool, rows, cols int) []bool {
	var pts []hullPoint
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !mask[r*cols+c] {
				continue
			}
			for _, d := range pixelCorners {
				pts = append(pts, hullPoint{x: float64(r) + d.x, y: float64(c) + d.y})
			}
		}
	}

	out := make([]bool, rows*cols)
	if len(pts) == 0 {
		return out
	}
	hull := convexHull(pts)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if mask[r*cols+c] || insideHull(hull, hullPoint{x: float64(r), y: float64(c)}) {
				out[r*cols+c] = true
			}
		}
	}
	return out
}
