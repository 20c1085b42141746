package loaders

import (
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// WGSLLoader compiles a WGSL source with naga and reflects every graphics
// entry point of it into a stage.
type WGSLLoader struct {
	// Validate runs the naga IR validator before code generation.
	Validate bool
}

func (wl *WGSLLoader) Load(path string) (*metadata.ShaderResource, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader source `%s`", path)
	}
	name := AssetName(path)
	config, err := wl.Compile(name, string(source))
	if err != nil {
		return nil, errors.Wrapf(err, "shader source `%s`", path)
	}
	return &metadata.ShaderResource{
		Name:         name,
		FullPath:     path,
		Dependencies: []string{path},
		Config:       config,
	}, nil
}

// Compile turns WGSL into a shader configuration. All stages share one
// SPIR-V module and differ in entry point.
func (wl *WGSLLoader) Compile(name, source string) (metadata.ShaderConfig, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return metadata.ShaderConfig{}, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return metadata.ShaderConfig{}, errors.Wrap(err, "lowering failed")
	}
	if wl.Validate {
		issues, err := naga.Validate(module)
		if err != nil {
			return metadata.ShaderConfig{}, errors.Wrap(err, "validation failed")
		}
		if len(issues) > 0 {
			return metadata.ShaderConfig{}, errors.Newf("validation failed: %s", issues[0].Error())
		}
	}
	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: naga.DefaultOptions().SPIRVVersion})
	if err != nil {
		return metadata.ShaderConfig{}, err
	}
	if err := CheckSPIRV(code); err != nil {
		return metadata.ShaderConfig{}, errors.Wrap(err, "naga output")
	}
	stages, err := Reflect(module)
	if err != nil {
		return metadata.ShaderConfig{}, err
	}
	for i := range stages {
		stages[i].Code = code
	}
	core.LogDebug("WGSL shader `%s` compiled: %d stages, %d bytes of SPIR-V", name, len(stages), len(code))
	return metadata.ShaderConfig{Name: name, Stages: stages}, nil
}

// Reflect builds the stage reflection of every vertex and fragment entry
// point. Module scope resources are reported for every stage.
func Reflect(module *ir.Module) ([]metadata.StageReflection, error) {
	resources, pushConstants, err := reflectGlobals(module)
	if err != nil {
		return nil, err
	}
	var stages []metadata.StageReflection
	for _, ep := range module.EntryPoints {
		var stage driver.ShaderStage
		switch ep.Stage {
		case ir.StageVertex:
			stage = driver.ShaderStageVertex
		case ir.StageFragment:
			stage = driver.ShaderStageFragment
		default:
			core.LogWarn("entry point `%s` skipped: only graphics stages are supported", ep.Name)
			continue
		}
		refl := metadata.StageReflection{
			Stage:         stage,
			Entry:         ep.Name,
			Resources:     append([]metadata.StageResource(nil), resources...),
			PushConstants: append([]metadata.PushConstantMember(nil), pushConstants...),
		}
		if stage == driver.ShaderStageVertex {
			inputs, err := reflectInputs(module, ep)
			if err != nil {
				return nil, errors.Wrapf(err, "entry point `%s`", ep.Name)
			}
			refl.Inputs = inputs
		}
		stages = append(stages, refl)
	}
	if len(stages) == 0 {
		return nil, errors.New("no vertex or fragment entry point")
	}
	return stages, nil
}

func reflectGlobals(module *ir.Module) ([]metadata.StageResource, []metadata.PushConstantMember, error) {
	var (
		resources     []metadata.StageResource
		pushConstants []metadata.PushConstantMember
	)
	for _, gv := range module.GlobalVariables {
		if gv.Space == ir.SpacePushConstant {
			st, ok := module.Types[gv.Type].Inner.(ir.StructType)
			if !ok {
				pushConstants = append(pushConstants, metadata.PushConstantMember{Name: gv.Name, Size: typeSize(module, gv.Type)})
				continue
			}
			for _, m := range st.Members {
				pushConstants = append(pushConstants, metadata.PushConstantMember{
					Name:   m.Name,
					Offset: m.Offset,
					Size:   typeSize(module, m.Type),
				})
			}
			continue
		}
		if gv.Binding == nil {
			continue
		}
		res := metadata.StageResource{
			Name:       gv.Name,
			Set:        gv.Binding.Group,
			Binding:    gv.Binding.Binding,
			ArrayCount: 1,
		}
		switch gv.Space {
		case ir.SpaceUniform:
			res.Kind = metadata.ResourceKindUniformBuffer
			res.Size = typeSize(module, gv.Type)
		case ir.SpaceStorage:
			res.Kind = metadata.ResourceKindStorageBuffer
			res.Size = typeSize(module, gv.Type)
		case ir.SpaceHandle:
			switch inner := module.Types[gv.Type].Inner.(type) {
			case ir.SamplerType:
				res.Kind = metadata.ResourceKindSampler
			case ir.ImageType:
				res.Kind = metadata.ResourceKindTexture
				if inner.Class == ir.ImageClassStorage {
					res.Kind = metadata.ResourceKindStorageImage
				}
			default:
				return nil, nil, errors.Newf("resource `%s` has an unsupported handle type", gv.Name)
			}
		default:
			continue
		}
		resources = append(resources, res)
	}
	sort.Slice(resources, func(i, j int) bool {
		if resources[i].Set != resources[j].Set {
			return resources[i].Set < resources[j].Set
		}
		return resources[i].Binding < resources[j].Binding
	})
	return resources, pushConstants, nil
}

func reflectInputs(module *ir.Module, ep ir.EntryPoint) ([]metadata.StageInput, error) {
	// Entry point bodies are inline, not in module.Functions.
	fn := &ep.Function
	var inputs []metadata.StageInput
	add := func(name string, binding ir.Binding, typ ir.TypeHandle) error {
		loc, ok := binding.(ir.LocationBinding)
		if !ok {
			return nil
		}
		at, err := attributeType(module, typ)
		if err != nil {
			return errors.Wrapf(err, "input `%s`", name)
		}
		inputs = append(inputs, metadata.StageInput{Name: name, Location: loc.Location, Type: at})
		return nil
	}
	for _, arg := range fn.Arguments {
		if arg.Binding != nil {
			if err := add(arg.Name, *arg.Binding, arg.Type); err != nil {
				return nil, err
			}
			continue
		}
		st, ok := module.Types[arg.Type].Inner.(ir.StructType)
		if !ok {
			continue
		}
		for _, m := range st.Members {
			if m.Binding == nil {
				continue
			}
			if err := add(m.Name, *m.Binding, m.Type); err != nil {
				return nil, err
			}
		}
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Location < inputs[j].Location })
	return inputs, nil
}

func scalarKind(s ir.ScalarType) (metadata.ScalarKind, error) {
	if s.Width != 4 {
		return 0, errors.Newf("%d byte scalars are not supported", s.Width)
	}
	switch s.Kind {
	case ir.ScalarFloat:
		return metadata.ScalarFloat32, nil
	case ir.ScalarSint:
		return metadata.ScalarInt32, nil
	case ir.ScalarUint:
		return metadata.ScalarUint32, nil
	}
	return 0, errors.New("boolean inputs are not supported")
}

func attributeType(module *ir.Module, h ir.TypeHandle) (metadata.AttributeType, error) {
	switch t := module.Types[h].Inner.(type) {
	case ir.ScalarType:
		k, err := scalarKind(t)
		return metadata.AttributeType{Scalar: k, Components: 1, Rows: 1}, err
	case ir.VectorType:
		k, err := scalarKind(t.Scalar)
		return metadata.AttributeType{Scalar: k, Components: uint8(t.Size), Rows: 1}, err
	case ir.MatrixType:
		// One location per column.
		k, err := scalarKind(t.Scalar)
		return metadata.AttributeType{Scalar: k, Components: uint8(t.Rows), Rows: uint8(t.Columns)}, err
	}
	return metadata.AttributeType{}, errors.New("type cannot be a vertex attribute")
}

// typeSize follows the uniform buffer layout naga emits: vec3 matrix
// columns are padded to 16 bytes.
func typeSize(module *ir.Module, h ir.TypeHandle) uint32 {
	switch t := module.Types[h].Inner.(type) {
	case ir.ScalarType:
		return uint32(t.Width)
	case ir.VectorType:
		return uint32(t.Size) * uint32(t.Scalar.Width)
	case ir.MatrixType:
		rows := uint32(t.Rows)
		if rows == 3 {
			rows = 4
		}
		return uint32(t.Columns) * rows * uint32(t.Scalar.Width)
	case ir.ArrayType:
		if t.Size.Constant == nil {
			return 0
		}
		return *t.Size.Constant * t.Stride
	case ir.StructType:
		return t.Span
	case ir.AtomicType:
		return uint32(t.Scalar.Width)
	}
	return 0
}
