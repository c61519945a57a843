package models

import "fmt"

// BoundingBox is an axis-aligned box in voxel coordinates.
// Min corners are inclusive and Max corners exclusive.
type BoundingBox struct {
	MinX, MinY, MinZ int
	MaxX, MaxY, MaxZ int
}

// FullBox returns the box covering the whole shape
func FullBox(s Shape) BoundingBox {
	return BoundingBox{MaxX: s.Width, MaxY: s.Height, MaxZ: s.Depth}
}

// Empty reports whether the box contains no voxel
func (b BoundingBox) Empty() bool {
	return b.MaxX <= b.MinX || b.MaxY <= b.MinY || b.MaxZ <= b.MinZ
}

// Size returns the shape of the cropped sub-volume
func (b BoundingBox) Size() Shape {
	if b.Empty() {
		return Shape{}
	}
	return Shape{Depth: b.MaxZ - b.MinZ, Height: b.MaxY - b.MinY, Width: b.MaxX - b.MinX}
}

// Union returns the smallest box enclosing both boxes. Empty boxes are ignored.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return BoundingBox{
		MinX: min(b.MinX, o.MinX), MinY: min(b.MinY, o.MinY), MinZ: min(b.MinZ, o.MinZ),
		MaxX: max(b.MaxX, o.MaxX), MaxY: max(b.MaxY, o.MaxY), MaxZ: max(b.MaxZ, o.MaxZ),
	}
}

// Expand grows the box by n voxels on every side, clamped to the shape
func (b BoundingBox) Expand(n int, within Shape) BoundingBox {
	return BoundingBox{
		MinX: max(b.MinX-n, 0), MinY: max(b.MinY-n, 0), MinZ: max(b.MinZ-n, 0),
		MaxX: min(b.MaxX+n, within.Width), MaxY: min(b.MaxY+n, within.Height), MaxZ: min(b.MaxZ+n, within.Depth),
	}
}

// Within reports whether the box lies inside the shape
func (b BoundingBox) Within(s Shape) bool {
	return b.MinX >= 0 && b.MinY >= 0 && b.MinZ >= 0 &&
		b.MaxX <= s.Width && b.MaxY <= s.Height && b.MaxZ <= s.Depth
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d, %d:%d]", b.MinX, b.MaxX, b.MinY, b.MaxY, b.MinZ, b.MaxZ)
}

// ForegroundBox returns the union over all volumes of the box enclosing the
// voxels with a label above 0. The boolean is false when every volume is
// background only.
func ForegroundBox(volumes ...*LabelVolume) (BoundingBox, bool) {
	var box BoundingBox
	for _, v := range volumes {
		vb := BoundingBox{MinX: v.Width, MinY: v.Height, MinZ: v.Depth}
		for z := 0; z < v.Depth; z++ {
			for y := 0; y < v.Height; y++ {
				row := v.Index(z, y, 0)
				for x := 0; x < v.Width; x++ {
					if v.Data[row+x] <= 0 {
						continue
					}
					vb.MinX, vb.MaxX = min(vb.MinX, x), max(vb.MaxX, x+1)
					vb.MinY, vb.MaxY = min(vb.MinY, y), max(vb.MaxY, y+1)
					vb.MinZ, vb.MaxZ = min(vb.MinZ, z), max(vb.MaxZ, z+1)
				}
			}
		}
		box = box.Union(vb)
	}
	return box, !box.Empty()
}

// cropIndices calls fn with the source and destination index of every voxel in the box
func cropIndices(src Shape, b BoundingBox, fn func(srcIdx, dstIdx int)) {
	dst := b.Size()
	for z := 0; z < dst.Depth; z++ {
		for y := 0; y < dst.Height; y++ {
			srcRow := src.Index(b.MinZ+z, b.MinY+y, b.MinX)
			dstRow := dst.Index(z, y, 0)
			for x := 0; x < dst.Width; x++ {
				fn(srcRow+x, dstRow+x)
			}
		}
	}
}

// Crop extracts the sub-volume inside the box. Its origin moves to the box's min corner.
func (v *LabelVolume) Crop(b BoundingBox) (*LabelVolume, error) {
	if b.Empty() || !b.Within(v.Shape) {
		return nil, fmt.Errorf("bounding box %s does not fit volume %s", b, v.Shape)
	}
	out := NewLabelVolume(b.Size())
	out.Geometry = v.Geometry.Shifted(b.MinX, b.MinY, b.MinZ)
	cropIndices(v.Shape, b, func(s, d int) { out.Data[d] = v.Data[s] })
	return out, nil
}

// Crop extracts the sub-volume inside the box
func (v *IntensityVolume) Crop(b BoundingBox) (*IntensityVolume, error) {
	if b.Empty() || !b.Within(v.Shape) {
		return nil, fmt.Errorf("bounding box %s does not fit volume %s", b, v.Shape)
	}
	out := NewIntensityVolume(b.Size())
	out.Geometry = v.Geometry.Shifted(b.MinX, b.MinY, b.MinZ)
	cropIndices(v.Shape, b, func(s, d int) { out.Data[d] = v.Data[s] })
	return out, nil
}

// Embed places the cropped volume back at the box position inside a
// background-filled volume of the full shape.
func Embed(cropped *LabelVolume, full Shape, b BoundingBox) (*LabelVolume, error) {
	if cropped.Shape != b.Size() || !b.Within(full) {
		return nil, fmt.Errorf("cannot embed %s volume at %s into %s", cropped.Shape, b, full)
	}
	out := NewLabelVolume(full)
	out.Geometry = cropped.Geometry.Shifted(-b.MinX, -b.MinY, -b.MinZ)
	cropIndices(full, b, func(s, d int) { out.Data[s] = cropped.Data[d] })
	return out, nil
}
