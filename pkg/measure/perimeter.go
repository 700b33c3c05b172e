package measure

import "math"

// perimeterWeights maps a border-pixel neighbourhood code to its contour
// length contribution. The code of a border pixel is 1 plus 2 for every
// edge-adjacent border pixel plus 10 for every corner-adjacent one.
var perimeterWeights = map[int]float64{
	1:  1, // isolated pixel
	5:  1,
	7:  1,
	15: 1,
	17: 1,
	25: 1,
	27: 1,
	21: math.Sqrt2,
	33: math.Sqrt2,
	13: (1 + math.Sqrt2) / 2,
	23: (1 + math.Sqrt2) / 2,
}

// Perimeter estimates the contour length of the foreground of a rows x cols
// mask. Border pixels are foreground pixels with at least one background
// 4-neighbour (outside the mask counts as background); each border pixel
// contributes according to how its border neighbours continue the contour,
// so diagonal steps count sqrt(2) rather than 2.
func Perimeter(mask []bool, rows, cols int) float64 {
	at := func(r, c int) bool {
		if r < 0 || c < 0 || r >= rows || c >= cols {
			return false
		}
		return mask[r*cols+c]
	}

	border := make([]bool, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !mask[r*cols+c] {
				continue
			}
			if !at(r-1, c) || !at(r+1, c) || !at(r, c-1) || !at(r, c+1) {
				border[r*cols+c] = true
			}
		}
	}
	isBorder := func(r, c int) bool {
		if r < 0 || c < 0 || r >= rows || c >= cols {
			return false
		}
		return border[r*cols+c]
	}

	total := 0.0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !border[r*cols+c] {
				continue
			}
			code := 1
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				if isBorder(r+d[0], c+d[1]) {
					code += 2
				}
			}
			for _, d := range [4][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
				if isBorder(r+d[0], c+d[1]) {
					code += 10
				}
			}
			total += perimeterWeights[code]
		}
	}
	return total
}
