package volumeio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"awolmrf/internal/models"
)

// listSlices returns the image files of dir ordered by the number in their name.
// Files with equal numbers keep lexical order.
func listSlices(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no PNG or JPEG slices found in %s", dir)
	}

	// os.ReadDir returns names sorted, so a stable sort keeps lexical order on ties
	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})
	return files, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
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

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Decode(file)
	default:
		return jpeg.Decode(file)
	}
}

// isJPEG reports whether name has a JPEG extension
func isJPEG(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// readStack decodes files, the slices of dir, and calls sample for each pixel.
// All slices must share the dimensions of the first one.
func readStack(dir string, files []string, sample func(img image.Image, x, y int) (float64, error)) (models.Shape, []float64, error) {
	var shape models.Shape
	var data []float64
	for z, name := range files {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return models.Shape{}, nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}
		bounds := img.Bounds()
		if z == 0 {
			shape = models.Shape{Depth: len(files), Height: bounds.Dy(), Width: bounds.Dx()}
			data = make([]float64, 0, shape.Len())
		} else if bounds.Dx() != shape.Width || bounds.Dy() != shape.Height {
			return models.Shape{}, nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				name, bounds.Dx(), bounds.Dy(), shape.Width, shape.Height)
		}

		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				v, err := sample(img, x, y)
				if err != nil {
					return models.Shape{}, nil, fmt.Errorf("slice %s: %w", name, err)
				}
				data = append(data, v)
			}
		}
	}
	return shape, data, nil
}

// labelSample reads a raw grayscale value. Labels must come from lossless
// grayscale or paletted images so that the stored value is the label itself.
func labelSample(img image.Image, x, y int) (float64, error) {
	switch m := img.(type) {
	case *image.Gray16:
		return float64(m.Gray16At(x, y).Y), nil
	case *image.Gray:
		return float64(m.GrayAt(x, y).Y), nil
	case *image.Paletted:
		return float64(m.ColorIndexAt(x, y)), nil
	default:
		return 0, fmt.Errorf("unsupported label image type %T, expected grayscale", img)
	}
}

// intensitySample reads a grayscale brightness on the native scale of the image
func intensitySample(img image.Image, x, y int) (float64, error) {
	switch m := img.(type) {
	case *image.Gray16:
		return float64(m.Gray16At(x, y).Y), nil
	case *image.Gray:
		return float64(m.GrayAt(x, y).Y), nil
	default:
		g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
		return float64(g.Y), nil
	}
}

// ReadLabelSlices loads a label volume from a directory of grayscale PNG
// slices. JPEG slices are rejected since lossy compression alters labels.
func ReadLabelSlices(dir string) (*models.LabelVolume, error) {
	files, err := listSlices(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		if isJPEG(name) {
			return nil, fmt.Errorf("label slice %s is a lossy JPEG, use PNG", name)
		}
	}
	shape, data, err := readStack(dir, files, labelSample)
	if err != nil {
		return nil, err
	}
	v := models.NewLabelVolume(shape)
	for i, value := range data {
		v.Data[i] = int32(value)
	}
	return v, nil
}

// ReadIntensitySlices loads an intensity volume from a directory of slices
func ReadIntensitySlices(dir string) (*models.IntensityVolume, error) {
	files, err := listSlices(dir)
	if err != nil {
		return nil, err
	}
	shape, data, err := readStack(dir, files, intensitySample)
	if err != nil {
		return nil, err
	}
	return &models.IntensityVolume{Shape: shape, Geometry: models.DefaultGeometry(), Data: data}, nil
}

func sliceName(z int) string {
	return fmt.Sprintf("slice_%03d.png", z)
}

func savePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteLabelSlices saves a label volume as 16-bit grayscale PNG slices
func WriteLabelSlices(dir string, v *models.LabelVolume) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for z := range v.Depth {
		img := image.NewGray16(image.Rect(0, 0, v.Width, v.Height))
		for y := range v.Height {
			for x := range v.Width {
				label := v.At(z, y, x)
				if label < 0 || label > math.MaxUint16 {
					return fmt.Errorf("label %d at (%d,%d,%d) does not fit a 16-bit slice", label, z, y, x)
				}
				img.SetGray16(x, y, color.Gray16{Y: uint16(label)})
			}
		}
		if err := savePNG(filepath.Join(dir, sliceName(z)), img); err != nil {
			return fmt.Errorf("failed to save slice %d: %w", z, err)
		}
	}
	return nil
}

// WriteIntensitySlices saves an intensity volume as 16-bit grayscale PNG
// slices, rounding and clamping values to [0, 65535].
func WriteIntensitySlices(dir string, v *models.IntensityVolume) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for z := range v.Depth {
		img := image.NewGray16(image.Rect(0, 0, v.Width, v.Height))
		for y := range v.Height {
			for x := range v.Width {
				value := math.Round(v.At(z, y, x))
				value = math.Max(0, math.Min(math.MaxUint16, value))
				img.SetGray16(x, y, color.Gray16{Y: uint16(value)})
			}
		}
		if err := savePNG(filepath.Join(dir, sliceName(z)), img); err != nil {
			return fmt.Errorf("failed to save slice %d: %w", z, err)
		}
	}
	return nil
}
