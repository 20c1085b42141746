package loaders

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/driver"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

type inputDescriptor struct {
	Name     string `toml:"name"`
	Location uint32 `toml:"location"`
	Type     string `toml:"type"`
}

type resourceDescriptor struct {
	Name    string `toml:"name"`
	Kind    string `toml:"kind"`
	Set     uint32 `toml:"set"`
	Binding uint32 `toml:"binding"`
	Count   uint32 `toml:"count"`
	Size    uint32 `toml:"size"`
	Offset  uint32 `toml:"offset"`
}

type pushConstantDescriptor struct {
	Name   string `toml:"name"`
	Offset uint32 `toml:"offset"`
	Size   uint32 `toml:"size"`
}

type stageDescriptor struct {
	Stage         string                   `toml:"stage"`
	File          string                   `toml:"file"`
	Entry         string                   `toml:"entry"`
	Inputs        []inputDescriptor        `toml:"inputs"`
	Resources     []resourceDescriptor     `toml:"resources"`
	PushConstants []pushConstantDescriptor `toml:"push_constants"`
}

// shaderDescriptor is the .shadercfg format: the reflection the shader
// compiler reported, next to the compiled stage binaries.
type shaderDescriptor struct {
	Name   string            `toml:"name"`
	Stages []stageDescriptor `toml:"stages"`
}

// ShaderLoader reads .shadercfg reflection descriptors and their SPIR-V
// stage binaries. Binary paths are relative to the descriptor.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*metadata.ShaderResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader descriptor `%s`", path)
	}
	var desc shaderDescriptor
	if err := toml.Unmarshal(data, &desc); err != nil {
		return nil, errors.Wrapf(err, "failed to decode shader descriptor `%s`", path)
	}
	name := desc.Name
	if name == "" {
		name = AssetName(path)
	}
	if len(desc.Stages) == 0 {
		return nil, errors.Newf("shader descriptor `%s` declares no stages", path)
	}

	res := &metadata.ShaderResource{
		Name:         name,
		FullPath:     path,
		Dependencies: []string{path},
		Config:       metadata.ShaderConfig{Name: name},
	}
	dir := filepath.Dir(path)
	for i, sd := range desc.Stages {
		stage, err := ParseStage(sd.Stage)
		if err != nil {
			return nil, errors.Wrapf(err, "shader `%s` stage %d", name, i)
		}
		if sd.File == "" {
			return nil, errors.Newf("shader `%s` stage %s names no binary", name, stage)
		}
		binPath := filepath.Join(dir, sd.File)
		code, err := ReadSPIRV(binPath)
		if err != nil {
			return nil, err
		}
		res.Dependencies = append(res.Dependencies, binPath)

		refl := metadata.StageReflection{Stage: stage, Entry: sd.Entry, Code: code}
		for _, in := range sd.Inputs {
			typ, err := metadata.AttributeTypeFromString(in.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "shader `%s` input `%s`", name, in.Name)
			}
			refl.Inputs = append(refl.Inputs, metadata.StageInput{Name: in.Name, Location: in.Location, Type: typ})
		}
		for _, r := range sd.Resources {
			kind, err := metadata.ResourceKindFromString(r.Kind)
			if err != nil {
				return nil, errors.Wrapf(err, "shader `%s` resource `%s`", name, r.Name)
			}
			count := r.Count
			if count == 0 {
				count = 1
			}
			refl.Resources = append(refl.Resources, metadata.StageResource{
				Name:       r.Name,
				Kind:       kind,
				Set:        r.Set,
				Binding:    r.Binding,
				ArrayCount: count,
				Size:       r.Size,
				Offset:     r.Offset,
			})
		}
		for _, pc := range sd.PushConstants {
			refl.PushConstants = append(refl.PushConstants, metadata.PushConstantMember(pc))
		}
		res.Config.Stages = append(res.Config.Stages, refl)
	}
	core.LogDebug("shader descriptor `%s` loaded with %d stages", name, len(res.Config.Stages))
	return res, nil
}

// ParseStage accepts the stage names used by descriptors and glslc file
// extensions.
func ParseStage(s string) (driver.ShaderStage, error) {
	switch strings.ToLower(s) {
	case "vertex", "vert", "vs":
		return driver.ShaderStageVertex, nil
	case "fragment", "frag", "fs", "pixel":
		return driver.ShaderStageFragment, nil
	}
	return 0, errors.Newf("string %s is not a valid graphics stage", s)
}

// AssetName is the file name without directory and extension.
func AssetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
