package systems

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/** @brief The name of the default geometry. */
const DefaultGeometryName string = "default"

/**
 * @brief Represents the configuration for a geometry, ready to be uploaded
 * by the mesh system.
 */
type GeometryConfig struct {
	/** @brief The name of the geometry. */
	Name string
	/** @brief The name of the material used by the geometry. */
	MaterialName string
	Vertices     []math.Vertex3D
	Indices      []uint32
	Extents      math.Extents3D
}

func nonZero(what string, v float32) float32 {
	if v == 0 {
		core.LogWarn("%s must be nonzero. Defaulting to one.", what)
		return 1
	}
	return v
}

func (c *GeometryConfig) name(name, materialName string) {
	c.Name = name
	if c.Name == "" {
		c.Name = DefaultGeometryName
	}
	c.MaterialName = materialName
	if c.MaterialName == "" {
		c.MaterialName = metadata.DefaultMaterialName
	}
}

/**
 * @brief Generates configuration for a plane lying on the XZ plane and facing +Y.
 *
 * @param width The overall width of the plane. Must be non-zero.
 * @param depth The overall depth of the plane. Must be non-zero.
 * @param xSegmentCount The number of segments along the x-axis in the plane.
 * @param zSegmentCount The number of segments along the z-axis in the plane.
 * @param tileX The number of times the texture should tile across the plane on the x-axis.
 * @param tileY The number of times the texture should tile across the plane on the z-axis.
 */
func GeneratePlaneConfig(width, depth float32, xSegmentCount, zSegmentCount uint32, tileX, tileY float32, name, materialName string) *GeometryConfig {
	width = nonZero("width", width)
	depth = nonZero("depth", depth)
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)
	if xSegmentCount < 1 {
		core.LogWarn("xSegmentCount must be a positive number. Defaulting to one.")
		xSegmentCount = 1
	}
	if zSegmentCount < 1 {
		core.LogWarn("zSegmentCount must be a positive number. Defaulting to one.")
		zSegmentCount = 1
	}

	config := &GeometryConfig{
		Vertices: make([]math.Vertex3D, xSegmentCount*zSegmentCount*4),
		Indices:  make([]uint32, xSegmentCount*zSegmentCount*6),
	}
	segWidth := width / float32(xSegmentCount)
	segDepth := depth / float32(zSegmentCount)
	halfWidth := width * 0.5
	halfDepth := depth * 0.5
	up := math.NewVec3Up()
	for z := uint32(0); z < zSegmentCount; z++ {
		for x := uint32(0); x < xSegmentCount; x++ {
			minX := float32(x)*segWidth - halfWidth
			minZ := float32(z)*segDepth - halfDepth
			maxX := minX + segWidth
			maxZ := minZ + segDepth
			minU := float32(x) / float32(xSegmentCount) * tileX
			minV := float32(z) / float32(zSegmentCount) * tileY
			maxU := float32(x+1) / float32(xSegmentCount) * tileX
			maxV := float32(z+1) / float32(zSegmentCount) * tileY

			vOffset := (z*xSegmentCount + x) * 4
			v := config.Vertices[vOffset : vOffset+4]
			v[0] = math.Vertex3D{Position: math.NewVec3(minX, 0, -minZ), Normal: up, Texcoord: math.NewVec2(minU, minV)}
			v[1] = math.Vertex3D{Position: math.NewVec3(maxX, 0, -maxZ), Normal: up, Texcoord: math.NewVec2(maxU, maxV)}
			v[2] = math.Vertex3D{Position: math.NewVec3(minX, 0, -maxZ), Normal: up, Texcoord: math.NewVec2(minU, maxV)}
			v[3] = math.Vertex3D{Position: math.NewVec3(maxX, 0, -minZ), Normal: up, Texcoord: math.NewVec2(maxU, minV)}

			iOffset := (z*xSegmentCount + x) * 6
			quadIndices(config.Indices[iOffset:iOffset+6], vOffset)
		}
	}
	config.name(name, materialName)
	config.Extents = math.GeometryExtents(config.Vertices)
	math.GeometryGenerateTangents(config.Vertices, config.Indices)
	return config
}

// quadIndices writes the two counter clockwise triangles of the quad starting at vertex base.
func quadIndices(dst []uint32, base uint32) {
	dst[0] = base + 0
	dst[1] = base + 1
	dst[2] = base + 2
	dst[3] = base + 0
	dst[4] = base + 3
	dst[5] = base + 1
}

type cubeFace struct {
	normal  math.Vec3
	corners [4][3]int // 0 picks the min and 1 the max of each axis
}

var cubeFaces = [6]cubeFace{
	{normal: math.NewVec3(0, 0, 1), corners: [4][3]int{{0, 0, 1}, {1, 1, 1}, {0, 1, 1}, {1, 0, 1}}},
	{normal: math.NewVec3(0, 0, -1), corners: [4][3]int{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}, {0, 0, 0}}},
	{normal: math.NewVec3(-1, 0, 0), corners: [4][3]int{{0, 0, 0}, {0, 1, 1}, {0, 1, 0}, {0, 0, 1}}},
	{normal: math.NewVec3(1, 0, 0), corners: [4][3]int{{1, 0, 1}, {1, 1, 0}, {1, 1, 1}, {1, 0, 0}}},
	{normal: math.NewVec3(0, -1, 0), corners: [4][3]int{{1, 0, 1}, {0, 0, 0}, {1, 0, 0}, {0, 0, 1}}},
	{normal: math.NewVec3(0, 1, 0), corners: [4][3]int{{0, 1, 1}, {1, 1, 0}, {0, 1, 0}, {1, 1, 1}}},
}

/**
 * @brief Generates configuration for a cube centered on the origin with 4
 * vertices per face, so every face gets its own normal and texture coordinates.
 */
func GenerateCubeConfig(width, height, depth, tileX, tileY float32, name, materialName string) *GeometryConfig {
	width = nonZero("width", width)
	height = nonZero("height", height)
	depth = nonZero("depth", depth)
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)

	bounds := [2]math.Vec3{
		math.NewVec3(-width*0.5, -height*0.5, -depth*0.5),
		math.NewVec3(width*0.5, height*0.5, depth*0.5),
	}
	uvs := [4]math.Vec2{
		math.NewVec2(0, 0),
		math.NewVec2(tileX, tileY),
		math.NewVec2(0, tileY),
		math.NewVec2(tileX, 0),
	}

	config := &GeometryConfig{
		Vertices: make([]math.Vertex3D, 4*6),
		Indices:  make([]uint32, 6*6),
	}
	for f, face := range cubeFaces {
		for c, corner := range face.corners {
			config.Vertices[f*4+c] = math.Vertex3D{
				Position: math.NewVec3(bounds[corner[0]].X, bounds[corner[1]].Y, bounds[corner[2]].Z),
				Normal:   face.normal,
				Texcoord: uvs[c],
			}
		}
		quadIndices(config.Indices[f*6:f*6+6], uint32(f*4))
	}
	config.name(name, materialName)
	config.Extents = math.Extents3D{Min: bounds[0], Max: bounds[1]}
	math.GeometryGenerateTangents(config.Vertices, config.Indices)
	return config
}
