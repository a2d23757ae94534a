//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the sandbox in a window.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("run", ".", "--config", "assets/config.toml"), withStream())
	return err
}

// Compiles the shaders and records a few hundred frames without a window.
func (Run) Headless() error {
	if err := buildShaders(); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("run", ".", "--headless", "--frames", "300"), withStream())
	return err
}

// Runs the unit tests with the race detector.
func Test() error {
	// The race detector needs cgo.
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
