// Package spirv reads the resource interface of a SPIR-V module: descriptor
// bindings with their set, type, array size and name, and the push constant block.
package spirv

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	opName             = 5
	opEntryPoint       = 15
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageUniformConstant = 0
	storageUniform         = 2
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)

const (
	execVertex   = 0
	execFragment = 4
	execCompute  = 5
)

type Binding struct {
	Set     uint32
	Binding uint32
	Type    metadata.DescriptorType
	// Array length, 1 for plain bindings and 0 for runtime sized arrays.
	Count uint32
	Name  string
}

type PushConstantBlock struct {
	Name string
	Size uint32
}

type Module struct {
	Stage      metadata.ShaderStageFlags
	EntryPoint string
	// Sorted by set, then binding.
	Bindings      []Binding
	PushConstants *PushConstantBlock
}

type typeInfo struct {
	op       uint32
	operands []uint32
}

type decorations struct {
	set, binding        uint32
	hasSet, hasBinding  bool
	block, bufferBlock  bool
	arrayStride         uint32
	memberOffsets       map[uint32]uint32
	memberMatrixStrides map[uint32]uint32
}

type reflector struct {
	names     map[uint32]string
	types     map[uint32]typeInfo
	constants map[uint32]uint32
	decos     map[uint32]*decorations
	variables []variable
	stage     metadata.ShaderStageFlags
	entry     string
}

type variable struct {
	id, pointerType, storage uint32
}

// WordsFromBytes converts a little endian SPIR-V file into words and checks the magic.
func WordsFromBytes(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of 4", core.ErrInvalidSPIRV, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != metadata.SPIRVMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", core.ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// Reflect parses the module and returns its descriptor bindings and push constant block.
func Reflect(words []uint32) (*Module, error) {
	if len(words) < 5 || words[0] != metadata.SPIRVMagic {
		return nil, fmt.Errorf("%w: missing header", core.ErrInvalidSPIRV)
	}
	r := &reflector{
		names:     map[uint32]string{},
		types:     map[uint32]typeInfo{},
		constants: map[uint32]uint32{},
		decos:     map[uint32]*decorations{},
	}
	for i := 5; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xFFFF
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("%w: truncated instruction at word %d", core.ErrInvalidSPIRV, i)
		}
		if err := r.instruction(op, words[i+1:i+count]); err != nil {
			return nil, err
		}
		i += count
	}
	return r.module()
}

func (r *reflector) deco(id uint32) *decorations {
	d, ok := r.decos[id]
	if !ok {
		d = &decorations{memberOffsets: map[uint32]uint32{}, memberMatrixStrides: map[uint32]uint32{}}
		r.decos[id] = d
	}
	return d
}

func (r *reflector) instruction(op uint32, args []uint32) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%w: opcode %d needs %d operands", core.ErrInvalidSPIRV, op, n)
		}
		return nil
	}
	switch op {
	case opName:
		if err := need(1); err != nil {
			return err
		}
		r.names[args[0]] = literalString(args[1:])
	case opEntryPoint:
		if err := need(2); err != nil {
			return err
		}
		// Only the first entry point describes the stage.
		if r.stage != 0 {
			return nil
		}
		switch args[0] {
		case execVertex:
			r.stage = metadata.ShaderStageVertex
		case execFragment:
			r.stage = metadata.ShaderStageFragment
		case execCompute:
			r.stage = metadata.ShaderStageCompute
		default:
			return fmt.Errorf("%w: unsupported execution model %d", core.ErrInvalidShaderModule, args[0])
		}
		r.entry = literalString(args[2:])
	case opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix, opTypeImage, opTypeSampler,
		opTypeSampledImage, opTypeArray, opTypeRuntimeArray, opTypeStruct, opTypePointer:
		if err := need(1); err != nil {
			return err
		}
		r.types[args[0]] = typeInfo{op: op, operands: args[1:]}
	case opConstant:
		if err := need(3); err != nil {
			return err
		}
		r.constants[args[1]] = args[2]
	case opVariable:
		if err := need(3); err != nil {
			return err
		}
		r.variables = append(r.variables, variable{id: args[1], pointerType: args[0], storage: args[2]})
	case opDecorate:
		if err := need(2); err != nil {
			return err
		}
		d := r.deco(args[0])
		switch args[1] {
		case decorationBlock:
			d.block = true
		case decorationBufferBlock:
			d.bufferBlock = true
		case decorationArrayStride:
			if len(args) > 2 {
				d.arrayStride = args[2]
			}
		case decorationBinding:
			if len(args) > 2 {
				d.binding, d.hasBinding = args[2], true
			}
		case decorationDescriptorSet:
			if len(args) > 2 {
				d.set, d.hasSet = args[2], true
			}
		}
	case opMemberDecorate:
		if err := need(4); err != nil {
			return err
		}
		d := r.deco(args[0])
		switch args[2] {
		case decorationOffset:
			d.memberOffsets[args[1]] = args[3]
		case decorationMatrixStride:
			d.memberMatrixStrides[args[1]] = args[3]
		}
	}
	return nil
}

func (r *reflector) module() (*Module, error) {
	if r.stage == 0 {
		return nil, fmt.Errorf("%w: no entry point", core.ErrInvalidShaderModule)
	}
	m := &Module{Stage: r.stage, EntryPoint: r.entry}
	for _, v := range r.variables {
		ptr, ok := r.types[v.pointerType]
		if !ok || ptr.op != opTypePointer || len(ptr.operands) < 2 {
			continue
		}
		pointee := ptr.operands[1]
		switch v.storage {
		case storagePushConstant:
			size, err := r.sizeOf(pointee)
			if err != nil {
				return nil, err
			}
			m.PushConstants = &PushConstantBlock{Name: r.nameOf(v.id, pointee), Size: size}
		case storageUniformConstant, storageUniform, storageStorageBuffer:
			d := r.decos[v.id]
			if d == nil || !d.hasBinding {
				continue
			}
			elem, count := r.unwrapArray(pointee)
			t, ok := r.descriptorType(elem, v.storage)
			if !ok {
				continue
			}
			m.Bindings = append(m.Bindings, Binding{
				Set:     d.set,
				Binding: d.binding,
				Type:    t,
				Count:   count,
				Name:    r.nameOf(v.id, elem),
			})
		}
	}
	sort.Slice(m.Bindings, func(i, j int) bool {
		if m.Bindings[i].Set != m.Bindings[j].Set {
			return m.Bindings[i].Set < m.Bindings[j].Set
		}
		return m.Bindings[i].Binding < m.Bindings[j].Binding
	})
	return m, nil
}

// nameOf prefers the instance name of the variable over the name of its block type.
func (r *reflector) nameOf(variable, typ uint32) string {
	if n := r.names[variable]; n != "" {
		return n
	}
	return r.names[typ]
}

func (r *reflector) unwrapArray(id uint32) (uint32, uint32) {
	t := r.types[id]
	switch t.op {
	case opTypeArray:
		if len(t.operands) >= 2 {
			return t.operands[0], r.constants[t.operands[1]]
		}
	case opTypeRuntimeArray:
		if len(t.operands) >= 1 {
			return t.operands[0], 0
		}
	}
	return id, 1
}

func (r *reflector) descriptorType(id, storage uint32) (metadata.DescriptorType, bool) {
	t, ok := r.types[id]
	if !ok {
		return 0, false
	}
	switch t.op {
	case opTypeSampledImage:
		return metadata.DescriptorTypeCombinedImageSampler, true
	case opTypeSampler:
		return metadata.DescriptorTypeSampler, true
	case opTypeImage:
		// Operand 5 is Sampled: 2 means read/write storage.
		if len(t.operands) > 5 && t.operands[5] == 2 {
			return metadata.DescriptorTypeStorageImage, true
		}
		return metadata.DescriptorTypeSampledImage, true
	case opTypeStruct:
		if storage == storageStorageBuffer {
			return metadata.DescriptorTypeStorageBuffer, true
		}
		if d := r.decos[id]; d != nil && d.bufferBlock {
			return metadata.DescriptorTypeStorageBuffer, true
		}
		return metadata.DescriptorTypeUniformBuffer, true
	}
	return 0, false
}

func (r *reflector) sizeOf(id uint32) (uint32, error) {
	t, ok := r.types[id]
	if !ok {
		return 0, fmt.Errorf("%w: unknown type id %d", core.ErrInvalidSPIRV, id)
	}
	operands := 2
	switch t.op {
	case opTypeInt, opTypeFloat:
		operands = 1
	case opTypeStruct:
		operands = 0
	}
	if len(t.operands) < operands {
		return 0, fmt.Errorf("%w: malformed type %d", core.ErrInvalidSPIRV, id)
	}
	switch t.op {
	case opTypeInt, opTypeFloat:
		return t.operands[0] / 8, nil
	case opTypeVector:
		comp, err := r.sizeOf(t.operands[0])
		return comp * t.operands[1], err
	case opTypeMatrix:
		col, err := r.sizeOf(t.operands[0])
		return col * t.operands[1], err
	case opTypeArray:
		n := r.constants[t.operands[1]]
		if d := r.decos[id]; d != nil && d.arrayStride > 0 {
			return d.arrayStride * n, nil
		}
		elem, err := r.sizeOf(t.operands[0])
		return elem * n, err
	case opTypeStruct:
		d := r.decos[id]
		var size uint32
		for i, member := range t.operands {
			ms, err := r.sizeOf(member)
			if err != nil {
				return 0, err
			}
			var offset uint32
			if d != nil {
				offset = d.memberOffsets[uint32(i)]
				if stride, ok := d.memberMatrixStrides[uint32(i)]; ok {
					if mt := r.types[member]; mt.op == opTypeMatrix {
						ms = stride * mt.operands[1]
					}
				}
			}
			if end := offset + ms; end > size {
				size = end
			}
		}
		return size, nil
	}
	return 0, fmt.Errorf("%w: type %d has no size", core.ErrInvalidSPIRV, id)
}

func literalString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for i := 0; i < 4; i++ {
			c := byte(w >> (8 * i))
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}
