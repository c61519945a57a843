// Package visualization renders label volumes as color overlays for visual
// quality control of a fusion.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"awolmrf/internal/models"
)

// undeterminedColor marks low-confidence voxels
var undeterminedColor = color.RGBA{R: 255, A: 255}

// palette holds the overlay colors of labels 1..len(palette); larger labels wrap around
var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 188, G: 189, B: 34, A: 255},
	{R: 23, G: 190, B: 207, A: 255},
}

// LabelColor returns the overlay color of a label. Background is fully
// transparent and models.Undetermined is red.
func LabelColor(label int32) color.RGBA {
	switch {
	case label == models.Undetermined:
		return undeterminedColor
	case label <= 0:
		return color.RGBA{}
	default:
		return palette[int(label-1)%len(palette)]
	}
}

// Viewer draws slices of a label volume over an optional intensity volume
type Viewer struct {
	labels    *models.LabelVolume
	intensity *models.IntensityVolume

	// intensity window mapped onto black..white
	lo, hi float64

	// Opacity of the label overlay in [0, 1]
	Opacity float64
}

// NewViewer creates a viewer. intensity may be nil, in which case labels are
// drawn over black.
func NewViewer(labels *models.LabelVolume, intensity *models.IntensityVolume) (*Viewer, error) {
	v := &Viewer{labels: labels, intensity: intensity, Opacity: 0.5}
	if intensity == nil {
		return v, nil
	}
	if intensity.Shape != labels.Shape {
		return nil, fmt.Errorf("intensity is %s, labels are %s", intensity.Shape, labels.Shape)
	}
	v.lo, v.hi = math.Inf(1), math.Inf(-1)
	for _, value := range intensity.Data {
		v.lo = math.Min(v.lo, value)
		v.hi = math.Max(v.hi, value)
	}
	return v, nil
}

// gray maps the intensity of voxel idx onto 0..255
func (v *Viewer) gray(idx int) float64 {
	if v.intensity == nil || v.hi <= v.lo {
		return 0
	}
	return 255 * (v.intensity.Data[idx] - v.lo) / (v.hi - v.lo)
}

// pixel blends the label color of voxel idx over its gray value
func (v *Viewer) pixel(idx int) color.RGBA {
	g := v.gray(idx)
	c := LabelColor(v.labels.Data[idx])
	if c.A == 0 {
		return color.RGBA{R: uint8(g), G: uint8(g), B: uint8(g), A: 255}
	}
	blend := func(ch uint8) uint8 {
		return uint8(math.Round(v.Opacity*float64(ch) + (1-v.Opacity)*g))
	}
	return color.RGBA{R: blend(c.R), G: blend(c.G), B: blend(c.B), A: 255}
}

// ExtractSlice renders the slice at position along axis x, y or z.
// An x slice spans (z, y), a y slice spans (x, z) and a z slice spans (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	s := v.labels.Shape

	var img *image.RGBA
	switch axis {
	case "x", "X":
		if position >= s.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, s.Width)
		}
		img = image.NewRGBA(image.Rect(0, 0, s.Depth, s.Height))
		for y := range s.Height {
			for z := range s.Depth {
				img.SetRGBA(z, y, v.pixel(s.Index(z, y, position)))
			}
		}

	case "y", "Y":
		if position >= s.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, s.Height)
		}
		img = image.NewRGBA(image.Rect(0, 0, s.Width, s.Depth))
		for z := range s.Depth {
			for x := range s.Width {
				img.SetRGBA(x, z, v.pixel(s.Index(z, position, x)))
			}
		}

	case "z", "Z":
		if position >= s.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, s.Depth)
		}
		img = image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
		for y := range s.Height {
			for x := range s.Width {
				img.SetRGBA(x, y, v.pixel(s.Index(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves a rendered slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence renders and saves every slice along the specified axis.
// It returns the number of files written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.labels.Width
	case "y", "Y":
		maxPos = v.labels.Height
	case "z", "Z":
		maxPos = v.labels.Depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := range maxPos {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}

	return maxPos, nil
}
