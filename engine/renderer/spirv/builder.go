package spirv

import (
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	opMemoryModel   = 14
	opExecutionMode = 16
	opCapability    = 17
	opTypeVoid      = 19
	opTypeFunction  = 33
	opFunction      = 54
	opFunctionEnd   = 56
	opLabel         = 248
	opReturn        = 253
)

// SPIR-V 1.3, the first version with the StorageBuffer storage class in core.
const spirvVersion = 0x00010300

const (
	capabilityShader          = 1
	addressingLogical         = 0
	memoryModelGLSL450        = 1
	executionOriginUpperLeft  = 7
	executionLocalSize        = 17
	functionControlNone       = 0
	imageDim2D                = 1
	imageSampled              = 1
	imageStorage              = 2
	imageFormatUnknown        = 0
	imageFormatRgba32f        = 1
	storageClassUniform       = storageUniform
	storageClassPushConstant  = storagePushConstant
	storageClassStorageBuffer = storageStorageBuffer
)

// Builder assembles a minimal, valid SPIR-V module with an empty entry point and
// the given resource declarations. It backs the built-in empty fragment stage.
type Builder struct {
	stage       metadata.ShaderStageFlags
	entry       string
	bound       uint32
	main        uint32
	names       []uint32
	annotations []uint32
	types       []uint32

	float32ID, vec4ID, uint32ID, sampledID uint32
}

func NewBuilder(stage metadata.ShaderStageFlags, entry string) *Builder {
	b := &Builder{stage: stage, entry: entry, bound: 1}
	b.main = b.ID()
	return b
}

// ID reserves a new result id.
func (b *Builder) ID() uint32 {
	id := b.bound
	b.bound++
	return id
}

func instruction(dst []uint32, op uint32, args ...uint32) []uint32 {
	dst = append(dst, uint32(len(args)+1)<<16|op)
	return append(dst, args...)
}

func encodeString(s string) []uint32 {
	data := append([]byte(s), 0)
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return out
}

func (b *Builder) Name(id uint32, name string) {
	if name == "" {
		return
	}
	b.names = instruction(b.names, opName, append([]uint32{id}, encodeString(name)...)...)
}

func (b *Builder) Decorate(id, decoration uint32, literals ...uint32) {
	b.annotations = instruction(b.annotations, opDecorate, append([]uint32{id, decoration}, literals...)...)
}

func (b *Builder) MemberDecorate(id, member, decoration uint32, literals ...uint32) {
	b.annotations = instruction(b.annotations, opMemberDecorate, append([]uint32{id, member, decoration}, literals...)...)
}

// Type declares a new type or constant like instruction whose first operand is its result id.
func (b *Builder) Type(op uint32, operands ...uint32) uint32 {
	id := b.ID()
	b.types = instruction(b.types, op, append([]uint32{id}, operands...)...)
	return id
}

func (b *Builder) Constant(typ, value uint32) uint32 {
	id := b.ID()
	b.types = instruction(b.types, opConstant, typ, id, value)
	return id
}

func (b *Builder) Variable(pointerType, storage uint32) uint32 {
	id := b.ID()
	b.types = instruction(b.types, opVariable, pointerType, id, storage)
	return id
}

func (b *Builder) float32Type() uint32 {
	if b.float32ID == 0 {
		b.float32ID = b.Type(opTypeFloat, 32)
	}
	return b.float32ID
}

func (b *Builder) vec4Type() uint32 {
	if b.vec4ID == 0 {
		b.vec4ID = b.Type(opTypeVector, b.float32Type(), 4)
	}
	return b.vec4ID
}

func (b *Builder) uint32Type() uint32 {
	if b.uint32ID == 0 {
		b.uint32ID = b.Type(opTypeInt, 32, 0)
	}
	return b.uint32ID
}

func (b *Builder) sampledImageType() uint32 {
	if b.sampledID == 0 {
		img := b.Type(opTypeImage, b.float32Type(), imageDim2D, 0, 0, 0, imageSampled, imageFormatUnknown)
		b.sampledID = b.Type(opTypeSampledImage, img)
	}
	return b.sampledID
}

func (b *Builder) block(name string, vec4s int, decoration uint32) uint32 {
	members := make([]uint32, vec4s)
	for i := range members {
		members[i] = b.vec4Type()
	}
	st := b.Type(opTypeStruct, members...)
	b.Name(st, name)
	b.Decorate(st, decoration)
	for i := range members {
		b.MemberDecorate(st, uint32(i), decorationOffset, uint32(i*16))
	}
	return st
}

func (b *Builder) bind(variable, set, binding uint32) {
	b.Decorate(variable, decorationDescriptorSet, set)
	b.Decorate(variable, decorationBinding, binding)
}

// UniformBlock declares a uniform buffer of vec4s members. An empty instance
// name leaves the block type name as the binding name.
func (b *Builder) UniformBlock(set, binding uint32, blockName, instanceName string, vec4s int) uint32 {
	st := b.block(blockName, vec4s, decorationBlock)
	ptr := b.Type(opTypePointer, storageClassUniform, st)
	v := b.Variable(ptr, storageClassUniform)
	b.Name(v, instanceName)
	b.bind(v, set, binding)
	return v
}

// StorageBuffer declares a runtime sized storage buffer of vec4s.
func (b *Builder) StorageBuffer(set, binding uint32, name string) uint32 {
	arr := b.Type(opTypeRuntimeArray, b.vec4Type())
	b.Decorate(arr, decorationArrayStride, 16)
	st := b.Type(opTypeStruct, arr)
	b.Decorate(st, decorationBlock)
	b.MemberDecorate(st, 0, decorationOffset, 0)
	ptr := b.Type(opTypePointer, storageClassStorageBuffer, st)
	v := b.Variable(ptr, storageClassStorageBuffer)
	b.Name(v, name)
	b.bind(v, set, binding)
	return v
}

// CombinedImageSampler declares a sampler2D, an array of them when count > 1.
func (b *Builder) CombinedImageSampler(set, binding uint32, name string, count uint32) uint32 {
	typ := b.sampledImageType()
	if count > 1 {
		n := b.Constant(b.uint32Type(), count)
		typ = b.Type(opTypeArray, typ, n)
	}
	ptr := b.Type(opTypePointer, storageUniformConstant, typ)
	v := b.Variable(ptr, storageUniformConstant)
	b.Name(v, name)
	b.bind(v, set, binding)
	return v
}

// StorageImage declares an rgba32f image2D.
func (b *Builder) StorageImage(set, binding uint32, name string) uint32 {
	img := b.Type(opTypeImage, b.float32Type(), imageDim2D, 0, 0, 0, imageStorage, imageFormatRgba32f)
	ptr := b.Type(opTypePointer, storageUniformConstant, img)
	v := b.Variable(ptr, storageUniformConstant)
	b.Name(v, name)
	b.bind(v, set, binding)
	return v
}

// PushConstantBlock declares a push constant block of vec4s members.
func (b *Builder) PushConstantBlock(name string, vec4s int) uint32 {
	st := b.block(name, vec4s, decorationBlock)
	ptr := b.Type(opTypePointer, storageClassPushConstant, st)
	return b.Variable(ptr, storageClassPushConstant)
}

// Words emits the module in the section order SPIR-V requires. The builder
// stays usable afterwards.
func (b *Builder) Words() []uint32 {
	bound := b.bound
	next := func() uint32 { id := bound; bound++; return id }
	voidID, fnType, label := next(), next(), next()

	model := uint32(execFragment)
	switch b.stage {
	case metadata.ShaderStageVertex:
		model = execVertex
	case metadata.ShaderStageCompute:
		model = execCompute
	}

	out := []uint32{metadata.SPIRVMagic, spirvVersion, 0, bound, 0}
	out = instruction(out, opCapability, capabilityShader)
	out = instruction(out, opMemoryModel, addressingLogical, memoryModelGLSL450)
	out = instruction(out, opEntryPoint, append([]uint32{model, b.main}, encodeString(b.entry)...)...)
	switch model {
	case execFragment:
		out = instruction(out, opExecutionMode, b.main, executionOriginUpperLeft)
	case execCompute:
		out = instruction(out, opExecutionMode, b.main, executionLocalSize, 64, 1, 1)
	}
	out = append(out, b.names...)
	out = append(out, b.annotations...)
	out = append(out, b.types...)
	out = instruction(out, opTypeVoid, voidID)
	out = instruction(out, opTypeFunction, fnType, voidID)
	out = instruction(out, opFunction, voidID, b.main, functionControlNone, fnType)
	out = instruction(out, opLabel, label)
	out = instruction(out, opReturn)
	return instruction(out, opFunctionEnd)
}

// Bytes is Words encoded little endian, the on-disk format.
func (b *Builder) Bytes() []byte {
	words := b.Words()
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[i*4] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}
	return out
}

// EmptyFragment is a fragment stage that writes nothing, used by depth only pipelines.
func EmptyFragment() []uint32 {
	return NewBuilder(metadata.ShaderStageFragment, "main").Words()
}
