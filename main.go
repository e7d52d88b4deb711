// The main package for the cafemap executable.
package main

import (
	"github.com/cafemap/cafemap/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
