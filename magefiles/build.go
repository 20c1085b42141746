//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles the GLSL stages under assets/shaders to SPIR-V next to their sources.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the testbed binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	return goCmd(nil, "build", "-o", "bin/vkbridge", ".")
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		fmt.Printf("No GLSL sources under %s\n", shaderDir)
		return nil
	}
	for _, src := range sources {
		if err := runCmd(false, nil, "glslc", src, "-o", src+".spv"); err != nil {
			return err
		}
	}
	return nil
}
