package main

import (
	"github.com/TritonDataCenter/toshstomp/cmd"
)

func main() {
	cmd.Execute()
}
