//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// runCmd echoes command and runs it, streaming output when mage is verbose
// or stream is set.
func runCmd(stream bool, env map[string]string, command string, args ...string) error {
	fmt.Printf("Executing: %s %s\n", command, strings.Join(args, " "))
	var err error
	if stream || mg.Verbose() {
		err = sh.RunWithV(env, command, args...)
	} else {
		var out string
		out, err = sh.OutputWith(env, command, args...)
		if err != nil {
			fmt.Println("... failed command output:")
			fmt.Println(out)
		}
	}
	if err != nil {
		return fmt.Errorf("error executing %s: %w", command, err)
	}
	return nil
}

func goCmd(env map[string]string, args ...string) error {
	return runCmd(true, env, mg.GoCmd(), args...)
}
