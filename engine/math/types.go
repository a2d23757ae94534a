package math

// Vec2 holds texture coordinates and screen positions.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a position, direction or scale.
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 is a homogeneous point, a plane or an RGBA colour.
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A unit quaternion rotation, W is the scalar part. */
type Quaternion Vec4

/**
 * @brief a 4x4 matrix, column-major. Data[12..14] hold the translation
 * and Data[i], Data[4+i], Data[8+i], Data[12+i] form row i.
 */
type Mat4 struct {
	Data [16]float32
}

// Extents3D is an axis aligned box in mesh space.
type Extents3D struct {
	Min Vec3
	Max Vec3
}

/**
 * @brief Represents a single vertex in 3D space, laid out the way the
 * default vertex input expects it (48 bytes).
 */
type Vertex3D struct {
	Position Vec3
	Normal   Vec3
	Texcoord Vec2
	// W carries the bitangent sign.
	Tangent Vec4
}

/**
 * @brief Position, rotation and scale of an instance, with a cached local
 * matrix. Mutate it through the setters so the cache is invalidated;
 * GetWorld multiplies in the parent chain.
 */
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
	// IsDirty marks Local as stale.
	IsDirty bool
	Local   Mat4
	Parent  *Transform
}
