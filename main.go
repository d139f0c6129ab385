// The main package for the podhaven crawler executable.
package main

import (
	"github.com/podhaven/crawler/cmd"
)

func main() {
	cmd.Execute()
}
