// Command pipesim runs the demo pipeline on the simulation substrate and
// writes its topology and instruction trace.
package main

import (
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
