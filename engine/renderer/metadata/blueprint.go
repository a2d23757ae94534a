package metadata

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/lumen/engine/core"
)

// EmptyFragmentShader names the built-in fragment stage used by depth only passes.
const EmptyFragmentShader = "empty"

type ShaderBlueprint struct {
	Stage string `yaml:"stage"`
	Path  string `yaml:"path"`
	Entry string `yaml:"entry,omitempty"`
}

type VertexBindingBlueprint struct {
	Binding uint32 `yaml:"binding"`
	Stride  uint32 `yaml:"stride"`
	Rate    string `yaml:"rate"`
}

type VertexAttributeBlueprint struct {
	Location uint32 `yaml:"location"`
	Binding  uint32 `yaml:"binding"`
	Format   string `yaml:"format"`
	Offset   uint32 `yaml:"offset"`
}

type VertexInputBlueprint struct {
	Bindings   []VertexBindingBlueprint   `yaml:"bindings"`
	Attributes []VertexAttributeBlueprint `yaml:"attributes"`
}

type DepthBiasBlueprint struct {
	Constant float32 `yaml:"constant"`
	Clamp    float32 `yaml:"clamp"`
	Slope    float32 `yaml:"slope"`
}

type RasterizationBlueprint struct {
	CullMode    string              `yaml:"cull_mode"`
	PolygonMode string              `yaml:"polygon_mode"`
	FrontFace   string              `yaml:"front_face"`
	LineWidth   float32             `yaml:"line_width"`
	DepthBias   *DepthBiasBlueprint `yaml:"depth_bias,omitempty"`
}

type DepthStencilBlueprint struct {
	DepthTest  bool   `yaml:"depth_test"`
	DepthWrite bool   `yaml:"depth_write"`
	Format     string `yaml:"format"`
	CompareOp  string `yaml:"compare_op"`
}

type AttachmentBlueprint struct {
	Format      string `yaml:"format"`
	BlendEnable bool   `yaml:"blend_enable"`
	WriteMask   string `yaml:"write_mask_rgba"`
}

// PipelineBlueprint is the YAML description of one pipeline. Omitted sections
// fall back to the defaults of ApplyDefaults.
type PipelineBlueprint struct {
	Name          string                 `yaml:"name"`
	Shaders       []ShaderBlueprint      `yaml:"shaders"`
	VertexInput   *VertexInputBlueprint  `yaml:"vertex_input,omitempty"`
	Topology      string                 `yaml:"topology"`
	Rasterization RasterizationBlueprint `yaml:"rasterization"`
	DepthStencil  *DepthStencilBlueprint `yaml:"depth_stencil,omitempty"`
	Attachments   []AttachmentBlueprint  `yaml:"attachments"`
	Multisample   bool                   `yaml:"multisample"`
}

// ParseBlueprint decodes, defaults and validates one YAML document.
func ParseBlueprint(data []byte) (*PipelineBlueprint, error) {
	bp := &PipelineBlueprint{}
	if err := yaml.Unmarshal(data, bp); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidBlueprint, err)
	}
	bp.ApplyDefaults()
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return bp, nil
}

// DefaultVertexInput is the mesh vertex at binding 0 and the instance matrix at binding 1.
func DefaultVertexInput() *VertexInputBlueprint {
	return &VertexInputBlueprint{
		Bindings: []VertexBindingBlueprint{
			{Binding: 0, Stride: VertexSize, Rate: "vertex"},
			{Binding: 1, Stride: InstanceDataSize, Rate: "instance"},
		},
		Attributes: []VertexAttributeBlueprint{
			{Location: 0, Binding: 0, Format: "vec3", Offset: 0},
			{Location: 1, Binding: 0, Format: "vec3", Offset: 12},
			{Location: 2, Binding: 0, Format: "vec2", Offset: 24},
			{Location: 3, Binding: 0, Format: "vec4", Offset: 32},
			{Location: 4, Binding: 1, Format: "vec4", Offset: 0},
			{Location: 5, Binding: 1, Format: "vec4", Offset: 16},
			{Location: 6, Binding: 1, Format: "vec4", Offset: 32},
			{Location: 7, Binding: 1, Format: "vec4", Offset: 48},
		},
	}
}

func (bp *PipelineBlueprint) IsCompute() bool {
	if len(bp.Shaders) != 1 {
		return false
	}
	stage, err := ParseShaderStage(bp.Shaders[0].Stage)
	return err == nil && stage == ShaderStageCompute
}

func (bp *PipelineBlueprint) ApplyDefaults() {
	for i := range bp.Shaders {
		if bp.Shaders[i].Entry == "" {
			bp.Shaders[i].Entry = "main"
		}
	}
	if bp.IsCompute() {
		return
	}
	if bp.VertexInput == nil {
		bp.VertexInput = DefaultVertexInput()
	}
	if bp.Topology == "" {
		bp.Topology = "triangle_list"
	}
	r := &bp.Rasterization
	if r.CullMode == "" {
		r.CullMode = "back"
	}
	if r.PolygonMode == "" {
		r.PolygonMode = "fill"
	}
	if r.FrontFace == "" {
		r.FrontFace = "ccw"
	}
	if r.LineWidth == 0 {
		r.LineWidth = 1
	}
	if ds := bp.DepthStencil; ds != nil {
		if ds.Format == "" {
			ds.Format = "d32"
		}
		if ds.CompareOp == "" {
			ds.CompareOp = "greater"
		}
	}
	for i := range bp.Attachments {
		if bp.Attachments[i].WriteMask == "" {
			bp.Attachments[i].WriteMask = "rgba"
		}
	}
}

func (bp *PipelineBlueprint) Validate() error {
	if bp.Name == "" {
		return fmt.Errorf("%w: missing name", core.ErrInvalidBlueprint)
	}
	if len(bp.Shaders) == 0 {
		return fmt.Errorf("%w: %s has no shaders", core.ErrInvalidBlueprint, bp.Name)
	}
	seen := ShaderStageFlags(0)
	for _, s := range bp.Shaders {
		stage, err := ParseShaderStage(s.Stage)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", core.ErrInvalidBlueprint, bp.Name, err)
		}
		if seen&stage != 0 {
			return fmt.Errorf("%w: %s declares stage %s twice", core.ErrInvalidBlueprint, bp.Name, s.Stage)
		}
		seen |= stage
		if s.Path == "" {
			return fmt.Errorf("%w: %s: %s stage has no path", core.ErrInvalidBlueprint, bp.Name, s.Stage)
		}
		if s.Path == EmptyFragmentShader && stage != ShaderStageFragment {
			return fmt.Errorf("%w: %s: only the fragment stage can be empty", core.ErrInvalidBlueprint, bp.Name)
		}
	}
	if seen&ShaderStageCompute != 0 {
		if len(bp.Shaders) != 1 {
			return fmt.Errorf("%w: %s mixes compute with graphics stages", core.ErrInvalidBlueprint, bp.Name)
		}
		return nil
	}
	if seen&ShaderStageVertex == 0 {
		return fmt.Errorf("%w: %s has no vertex stage", core.ErrInvalidBlueprint, bp.Name)
	}
	if ds := bp.DepthStencil; ds != nil {
		if ds.DepthWrite && !ds.DepthTest {
			return fmt.Errorf("%w: %s: depth_write requires depth_test", core.ErrInvalidBlueprint, bp.Name)
		}
		if f, err := ParseFormat(ds.Format); err != nil || !f.IsDepth() {
			return fmt.Errorf("%w: %s: %q is not a depth format", core.ErrInvalidBlueprint, bp.Name, ds.Format)
		}
		if _, err := ParseCompareOp(ds.CompareOp); err != nil {
			return fmt.Errorf("%w: %s: %w", core.ErrInvalidBlueprint, bp.Name, err)
		}
	}
	if bp.DepthStencil == nil && len(bp.Attachments) == 0 {
		return fmt.Errorf("%w: %s writes no attachment", core.ErrInvalidBlueprint, bp.Name)
	}
	for _, a := range bp.Attachments {
		if f, err := ParseFormat(a.Format); err != nil || f.IsDepth() {
			return fmt.Errorf("%w: %s: %q is not a colour format", core.ErrInvalidBlueprint, bp.Name, a.Format)
		}
		if _, err := ParseWriteMask(a.WriteMask); err != nil {
			return fmt.Errorf("%w: %s: %w", core.ErrInvalidBlueprint, bp.Name, err)
		}
	}
	if _, err := bp.vertexInput(); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrInvalidBlueprint, bp.Name, err)
	}
	if _, err := ParseTopology(bp.Topology); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrInvalidBlueprint, bp.Name, err)
	}
	if _, err := bp.rasterization(); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrInvalidBlueprint, bp.Name, err)
	}
	return nil
}

// Hash folds the name, the fixed function state and the first headBytes bytes of
// every shader file into a non-zero content hash. readHead returns nil for files
// it cannot read.
func (bp *PipelineBlueprint) Hash(readHead func(path string) []byte) uint64 {
	h := fnv.New64a()
	h.Write([]byte(bp.Name))
	state, err := yaml.Marshal(bp)
	if err == nil {
		h.Write(state)
	}
	var n [8]byte
	for _, s := range bp.Shaders {
		if s.Path == EmptyFragmentShader || readHead == nil {
			continue
		}
		head := readHead(s.Path)
		binary.LittleEndian.PutUint64(n[:], uint64(len(head)))
		h.Write(n[:])
		h.Write(head)
	}
	sum := h.Sum64()
	if sum == 0 {
		sum = 1
	}
	return sum
}

type vertexInput struct {
	bindings   []VertexBinding
	attributes []VertexAttribute
}

func (bp *PipelineBlueprint) vertexInput() (vertexInput, error) {
	var out vertexInput
	if bp.VertexInput == nil {
		return out, nil
	}
	for _, b := range bp.VertexInput.Bindings {
		rate := VertexInputRateVertex
		switch b.Rate {
		case "", "vertex":
		case "instance":
			rate = VertexInputRateInstance
		default:
			return out, fmt.Errorf("unknown input rate %q", b.Rate)
		}
		out.bindings = append(out.bindings, VertexBinding{Binding: b.Binding, Stride: b.Stride, Rate: rate})
	}
	for _, a := range bp.VertexInput.Attributes {
		f, err := ParseFormat(a.Format)
		if err != nil {
			return out, err
		}
		found := false
		for _, b := range out.bindings {
			if b.Binding == a.Binding {
				found = true
				break
			}
		}
		if !found {
			return out, fmt.Errorf("attribute %d uses undeclared binding %d", a.Location, a.Binding)
		}
		out.attributes = append(out.attributes, VertexAttribute{Location: a.Location, Binding: a.Binding, Format: f, Offset: a.Offset})
	}
	return out, nil
}

type rasterState struct {
	cull    FaceCullMode
	polygon PolygonMode
	front   FrontFace
}

func (bp *PipelineBlueprint) rasterization() (rasterState, error) {
	var rs rasterState
	switch bp.Rasterization.CullMode {
	case "none":
		rs.cull = FaceCullModeNone
	case "front":
		rs.cull = FaceCullModeFront
	case "back":
		rs.cull = FaceCullModeBack
	case "front_and_back":
		rs.cull = FaceCullModeFrontAndBack
	default:
		return rs, fmt.Errorf("unknown cull mode %q", bp.Rasterization.CullMode)
	}
	switch bp.Rasterization.PolygonMode {
	case "fill":
		rs.polygon = PolygonModeFill
	case "line":
		rs.polygon = PolygonModeLine
	case "point":
		rs.polygon = PolygonModePoint
	default:
		return rs, fmt.Errorf("unknown polygon mode %q", bp.Rasterization.PolygonMode)
	}
	switch bp.Rasterization.FrontFace {
	case "ccw":
		rs.front = FrontFaceCounterClockwise
	case "cw":
		rs.front = FrontFaceClockwise
	default:
		return rs, fmt.Errorf("unknown front face %q", bp.Rasterization.FrontFace)
	}
	return rs, nil
}

// GraphicsDesc converts the blueprint into a pipeline description. Stage modules
// are looked up by stage, samples applies only to multisampled blueprints.
func (bp *PipelineBlueprint) GraphicsDesc(modules map[ShaderStageFlags]ShaderModule, layout PipelineLayout, samples SampleCount) (*GraphicsPipelineDesc, error) {
	vi, err := bp.vertexInput()
	if err != nil {
		return nil, err
	}
	rs, err := bp.rasterization()
	if err != nil {
		return nil, err
	}
	topology, err := ParseTopology(bp.Topology)
	if err != nil {
		return nil, err
	}
	desc := &GraphicsPipelineDesc{
		Label:            bp.Name,
		Layout:           layout,
		VertexBindings:   vi.bindings,
		VertexAttributes: vi.attributes,
		Topology:         topology,
		CullMode:         rs.cull,
		PolygonMode:      rs.polygon,
		FrontFace:        rs.front,
		LineWidth:        bp.Rasterization.LineWidth,
		Samples:          SampleCount1,
	}
	if bp.Multisample && samples > SampleCount1 {
		desc.Samples = samples
		desc.Resolve = len(bp.Attachments) > 0
	}
	if b := bp.Rasterization.DepthBias; b != nil {
		desc.DepthBias = &DepthBias{ConstantFactor: b.Constant, Clamp: b.Clamp, SlopeFactor: b.Slope}
	}
	for _, s := range bp.Shaders {
		stage, err := ParseShaderStage(s.Stage)
		if err != nil {
			return nil, err
		}
		module, ok := modules[stage]
		if !ok {
			return nil, fmt.Errorf("%w: no module for %s stage", core.ErrInvalidShaderModule, s.Stage)
		}
		desc.Stages = append(desc.Stages, ShaderStageDesc{Stage: stage, Module: module, Entry: s.Entry})
	}
	if ds := bp.DepthStencil; ds != nil {
		desc.DepthTest = ds.DepthTest
		desc.DepthWrite = ds.DepthWrite
		if desc.DepthFormat, err = ParseFormat(ds.Format); err != nil {
			return nil, err
		}
		if desc.DepthCompare, err = ParseCompareOp(ds.CompareOp); err != nil {
			return nil, err
		}
	}
	for _, a := range bp.Attachments {
		f, err := ParseFormat(a.Format)
		if err != nil {
			return nil, err
		}
		mask, err := ParseWriteMask(a.WriteMask)
		if err != nil {
			return nil, err
		}
		target := ColorTargetDesc{Format: f, WriteMask: mask}
		if a.BlendEnable {
			target.Blend = BlendState{
				Enable:   true,
				SrcColor: BlendFactorSrcAlpha,
				DstColor: BlendFactorOneMinusSrcAlpha,
				ColorOp:  BlendOpAdd,
				SrcAlpha: BlendFactorOne,
				DstAlpha: BlendFactorZero,
				AlphaOp:  BlendOpAdd,
			}
		}
		desc.ColorTargets = append(desc.ColorTargets, target)
	}
	return desc, nil
}

func ParseShaderStage(s string) (ShaderStageFlags, error) {
	switch s {
	case "vertex", "vert":
		return ShaderStageVertex, nil
	case "fragment", "frag":
		return ShaderStageFragment, nil
	case "compute", "comp":
		return ShaderStageCompute, nil
	default:
		return 0, fmt.Errorf("unknown shader stage %q", s)
	}
}

func ParseFormat(s string) (Format, error) {
	switch s {
	case "vec2", "rg32f":
		return FormatR32G32Sfloat, nil
	case "vec3", "rgb32f":
		return FormatR32G32B32Sfloat, nil
	case "vec4", "rgba32f":
		return FormatR32G32B32A32Sfloat, nil
	case "rgba16f":
		return FormatR16G16B16A16Sfloat, nil
	case "rgba8":
		return FormatR8G8B8A8Unorm, nil
	case "rgba8_srgb":
		return FormatR8G8B8A8Srgb, nil
	case "bgra8":
		return FormatB8G8R8A8Unorm, nil
	case "bgra8_srgb":
		return FormatB8G8R8A8Srgb, nil
	case "r32u":
		return FormatR32Uint, nil
	case "d32":
		return FormatD32Sfloat, nil
	case "d24s8":
		return FormatD24UnormS8Uint, nil
	default:
		return FormatUndefined, fmt.Errorf("unknown format %q", s)
	}
}

func ParseCompareOp(s string) (CompareOp, error) {
	switch s {
	case "never":
		return CompareOpNever, nil
	case "less":
		return CompareOpLess, nil
	case "equal":
		return CompareOpEqual, nil
	case "less_or_equal":
		return CompareOpLessOrEqual, nil
	case "greater":
		return CompareOpGreater, nil
	case "not_equal":
		return CompareOpNotEqual, nil
	case "greater_or_equal":
		return CompareOpGreaterOrEqual, nil
	case "always":
		return CompareOpAlways, nil
	default:
		return 0, fmt.Errorf("unknown compare op %q", s)
	}
}

func ParseTopology(s string) (PrimitiveTopology, error) {
	switch s {
	case "point_list":
		return TopologyPointList, nil
	case "line_list":
		return TopologyLineList, nil
	case "line_strip":
		return TopologyLineStrip, nil
	case "triangle_list":
		return TopologyTriangleList, nil
	case "triangle_strip":
		return TopologyTriangleStrip, nil
	default:
		return 0, fmt.Errorf("unknown topology %q", s)
	}
}

// ParseWriteMask turns a channel string like "rgb" into the RGBA bit mask.
func ParseWriteMask(s string) (uint32, error) {
	var mask uint32
	for _, c := range s {
		switch c {
		case 'r':
			mask |= 0x1
		case 'g':
			mask |= 0x2
		case 'b':
			mask |= 0x4
		case 'a':
			mask |= 0x8
		default:
			return 0, fmt.Errorf("unknown channel %q in write mask", c)
		}
	}
	return mask, nil
}
