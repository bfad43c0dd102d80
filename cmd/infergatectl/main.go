package main

import (
	"os"

	"infergate/internal/ctl"
)

func main() {
	os.Exit(ctl.Main())
}
