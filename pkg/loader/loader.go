// Package loader reads a directory of binary mask images into a Volume.
package loader

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"fiberscan/internal/models"
)

// supportedExt lists the file extensions read as mask planes
var supportedExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// SizeMismatchError is returned when a plane differs in size from the first one
type SizeMismatchError struct {
	File       string
	Rows, Cols int
	WantRows   int
	WantCols   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("image %s is %dx%d, expected %dx%d", e.File, e.Cols, e.Rows, e.WantCols, e.WantRows)
}

// ListMaskFiles returns the image files of dir in slice order. Files are
// ordered by the number embedded in their name, ties broken by name.
func ListMaskFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if supportedExt[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no mask images found in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber returns the digits of filename read as one number, or 0
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return num
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Binarize sets a pixel to foreground when its luminance exceeds threshold
func Binarize(img image.Image, threshold uint8) models.BinarySlice {
	b := img.Bounds()
	out := models.NewBinarySlice(b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			if g.Y > threshold {
				out.Set(y, x, true)
			}
		}
	}
	return out
}

// LoadMaskStack loads every mask image in dir. Image i becomes plane i along
// dimension 0, its rows dimension 1 and its columns dimension 2.
func LoadMaskStack(dir string, threshold uint8) (models.Volume, error) {
	files, err := ListMaskFiles(dir)
	if err != nil {
		return models.Volume{}, err
	}

	var vol models.Volume
	for i, name := range files {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return models.Volume{}, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		plane := Binarize(img, threshold)

		if i == 0 {
			vol = models.NewVolume(len(files), plane.Rows, plane.Cols)
		} else if plane.Rows != vol.Shape[1] || plane.Cols != vol.Shape[2] {
			return models.Volume{}, &SizeMismatchError{
				File: name, Rows: plane.Rows, Cols: plane.Cols,
				WantRows: vol.Shape[1], WantCols: vol.Shape[2],
			}
		}

		copy(vol.Data[i*plane.Rows*plane.Cols:], plane.Data)
	}
	return vol, nil
}
