// Package volumeio reads and writes label and intensity volumes.
//
// Two layouts are supported:
//   - a directory holding one grayscale PNG or JPEG per z-slice, ordered by
//     the number in the file name
//   - a single ".vol" container file with a small header, the volume
//     geometry and a snappy compressed, CRC32 checked payload
//
// Slice directories carry no geometry. They are read with
// models.DefaultGeometry and label slices must be lossless PNG.
package volumeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"awolmrf/internal/models"
)

// Output formats
const (
	FormatAuto   = "auto"
	FormatSlices = "slices"
	FormatVol    = "vol"
)

// ContainerExt is the file extension of the container format
const ContainerExt = ".vol"

// ErrExists is returned when an output already exists and overwriting was not allowed
var ErrExists = errors.New("output already exists")

// ResolveFormat maps FormatAuto onto FormatSlices or FormatVol from the path
func ResolveFormat(path, format string) (string, error) {
	switch format {
	case FormatSlices, FormatVol:
		return format, nil
	case FormatAuto, "":
		if strings.EqualFold(filepath.Ext(path), ContainerExt) {
			return FormatVol, nil
		}
		return FormatSlices, nil
	default:
		return "", fmt.Errorf("unknown volume format %q", format)
	}
}

// inputFormat picks the reader for an existing path
func inputFormat(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return FormatSlices, nil
	}
	if strings.EqualFold(filepath.Ext(path), ContainerExt) {
		return FormatVol, nil
	}
	return "", fmt.Errorf("%s is neither a slice directory nor a %s file", path, ContainerExt)
}

// LoadLabels reads a label volume from a slice directory or a container file
func LoadLabels(path string) (*models.LabelVolume, error) {
	format, err := inputFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatSlices {
		return ReadLabelSlices(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	v, err := ReadLabels(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// LoadIntensity reads an intensity volume from a slice directory or a container file
func LoadIntensity(path string) (*models.IntensityVolume, error) {
	format, err := inputFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatSlices {
		return ReadIntensitySlices(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	v, err := ReadIntensity(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Exists reports whether something is already present at path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveLabels writes v to path in the given format. An existing output is
// only replaced when clobber is set.
func SaveLabels(path string, v *models.LabelVolume, format string, clobber bool) error {
	format, err := ResolveFormat(path, format)
	if err != nil {
		return err
	}
	if Exists(path) {
		if !clobber {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}

	if format == FormatSlices {
		return WriteLabelSlices(path, v)
	}
	return writeFile(path, func(f *os.File) error {
		return WriteLabels(f, v, DefaultFormat)
	})
}

// SaveIntensity writes v to path in the given format, replacing any existing output
func SaveIntensity(path string, v *models.IntensityVolume, format string) error {
	format, err := ResolveFormat(path, format)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}

	if format == FormatSlices {
		return WriteIntensitySlices(path, v)
	}
	return writeFile(path, func(f *os.File) error {
		return WriteIntensity(f, v, DefaultFormat)
	})
}

func writeFile(path string, write func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
