//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests. None of them needs a GPU.
func (Test) Unit() error {
	return goCmd(nil, "test", "./...")
}

// Runs the unit tests with the race detector.
func (Test) Race() error {
	return goCmd(map[string]string{"CGO_ENABLED": "1"}, "test", "-race", "./...")
}
