package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry() Geometry {
	return Geometry{
		Spacing:   [3]float64{0.5, 0.5, 2},
		Origin:    [3]float64{10, -20, 30},
		Direction: [9]float64{1, 0, 0, 0, -1, 0, 0, 0, 1},
	}
}

func TestGeometryShifted(t *testing.T) {
	g := testGeometry()
	shifted := g.Shifted(2, 4, 1)
	assert.Equal(t, [3]float64{11, -22, 32}, shifted.Origin)
	assert.Equal(t, g.Spacing, shifted.Spacing)
	assert.Equal(t, g.Direction, shifted.Direction)
	assert.True(t, shifted.Shifted(-2, -4, -1).Equal(g, GeometryTolerance))
}

func TestGeometryValidate(t *testing.T) {
	assert.NoError(t, DefaultGeometry().Validate())
	assert.NoError(t, testGeometry().Validate())

	g := testGeometry()
	g.Spacing[1] = 0
	assert.Error(t, g.Validate())

	assert.Error(t, Geometry{}.Validate())
}

func TestCheckGeometry(t *testing.T) {
	ref := testGeometry()
	assert.NoError(t, CheckGeometry(ref, []Geometry{ref, ref}, []string{"a", "b"}))

	nearby := ref
	nearby.Origin[0] += GeometryTolerance / 10
	assert.NoError(t, CheckGeometry(ref, []Geometry{nearby}, nil))

	tests := map[string]func(g *Geometry){
		"origin":    func(g *Geometry) { g.Origin[2] = 31 },
		"spacing":   func(g *Geometry) { g.Spacing[0] = 1 },
		"direction": func(g *Geometry) { g.Direction[4] = 1 },
	}
	for component, change := range tests {
		t.Run(component, func(t *testing.T) {
			g := ref
			change(&g)
			err := CheckGeometry(ref, []Geometry{ref, g}, []string{"a", "t1.vol"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), component+" of t1.vol")
		})
	}
}

func TestCropEmbedKeepGeometry(t *testing.T) {
	v := NewLabelVolume(Shape{Depth: 3, Height: 6, Width: 5})
	v.Geometry = testGeometry()
	box := BoundingBox{MinX: 2, MinY: 4, MinZ: 1, MaxX: 5, MaxY: 6, MaxZ: 3}

	cropped, err := v.Crop(box)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{11, -22, 32}, cropped.Geometry.Origin)

	full, err := Embed(cropped, v.Shape, box)
	require.NoError(t, err)
	assert.True(t, full.Geometry.Equal(v.Geometry, GeometryTolerance), "got %s", full.Geometry)
	assert.Equal(t, v.Geometry, full.Clone().Geometry)
}
