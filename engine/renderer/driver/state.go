package driver

type BlendFactor uint32

const (
	BlendFactorZero             BlendFactor = 0
	BlendFactorOne              BlendFactor = 1
	BlendFactorSrcColor         BlendFactor = 2
	BlendFactorOneMinusSrcColor BlendFactor = 3
	BlendFactorDstColor         BlendFactor = 4
	BlendFactorOneMinusDstColor BlendFactor = 5
	BlendFactorSrcAlpha         BlendFactor = 6
	BlendFactorOneMinusSrcAlpha BlendFactor = 7
	BlendFactorDstAlpha         BlendFactor = 8
	BlendFactorOneMinusDstAlpha BlendFactor = 9
)

type BlendOp uint32

const (
	BlendOpAdd             BlendOp = 0
	BlendOpSubtract        BlendOp = 1
	BlendOpReverseSubtract BlendOp = 2
	BlendOpMin             BlendOp = 3
	BlendOpMax             BlendOp = 4
)

type ColorComponent uint32

const (
	ColorComponentR   ColorComponent = 0x1
	ColorComponentG   ColorComponent = 0x2
	ColorComponentB   ColorComponent = 0x4
	ColorComponentA   ColorComponent = 0x8
	ColorComponentAll                = ColorComponentR | ColorComponentG | ColorComponentB | ColorComponentA
)

type CompareOp uint32

const (
	CompareOpNever          CompareOp = 0
	CompareOpLess           CompareOp = 1
	CompareOpEqual          CompareOp = 2
	CompareOpLessOrEqual    CompareOp = 3
	CompareOpGreater        CompareOp = 4
	CompareOpNotEqual       CompareOp = 5
	CompareOpGreaterOrEqual CompareOp = 6
	CompareOpAlways         CompareOp = 7
)

type PolygonMode uint32

const (
	PolygonModeFill  PolygonMode = 0
	PolygonModeLine  PolygonMode = 1
	PolygonModePoint PolygonMode = 2
)

type CullMode uint32

const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type BlendState struct {
	Enabled   bool
	SrcColor  BlendFactor
	DstColor  BlendFactor
	ColorOp   BlendOp
	SrcAlpha  BlendFactor
	DstAlpha  BlendFactor
	AlphaOp   BlendOp
	WriteMask ColorComponent
}

type DepthStencilState struct {
	TestEnabled    bool
	WriteEnabled   bool
	Compare        CompareOp
	StencilEnabled bool
}

type RasterState struct {
	Polygon   PolygonMode
	Cull      CullMode
	FrontFace FrontFace
	LineWidth float32
	DepthBias bool
}

// FixedFunctionState is the snapshot of the state manager that goes into a
// pipeline. It is comparable and used as part of pipeline cache keys.
type FixedFunctionState struct {
	Blend            BlendState
	DepthStencil     DepthStencilState
	Raster           RasterState
	PrimitiveRestart bool
}

// DefaultFixedFunctionState is alpha blended, depth tested and not culled.
func DefaultFixedFunctionState() FixedFunctionState {
	return FixedFunctionState{
		Blend: BlendState{
			Enabled:   true,
			SrcColor:  BlendFactorSrcAlpha,
			DstColor:  BlendFactorOneMinusSrcAlpha,
			ColorOp:   BlendOpAdd,
			SrcAlpha:  BlendFactorSrcAlpha,
			DstAlpha:  BlendFactorOneMinusSrcAlpha,
			AlphaOp:   BlendOpAdd,
			WriteMask: ColorComponentAll,
		},
		DepthStencil: DepthStencilState{
			TestEnabled:  true,
			WriteEnabled: true,
			Compare:      CompareOpLess,
		},
		Raster: RasterState{
			Polygon:   PolygonModeFill,
			Cull:      CullModeNone,
			FrontFace: FrontFaceCounterClockwise,
			LineWidth: 1.0,
		},
	}
}
