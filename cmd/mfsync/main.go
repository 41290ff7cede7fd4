package main

import (
	"mfsync/cmd/mfsync/commands"
	"mfsync/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
