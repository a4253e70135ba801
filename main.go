// The main package for the renderctl executable.
package main

import (
	"github.com/JakeFAU/bluemap-render/cmd"
)

func main() {
	cmd.Execute()
}
