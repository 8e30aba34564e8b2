package main

import (
	"github.com/ColonelBlimp/wklink/cmd"
	"github.com/ColonelBlimp/wklink/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
