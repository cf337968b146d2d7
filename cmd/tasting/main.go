package main

import (
	"github.com/EliasMarine/bourbonbuddy-sub001/cmd/tasting/cmd"
)

func main() {
	cmd.Execute()
}
