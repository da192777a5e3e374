// ./main.go
package main

import (
	"github.com/kzhdev5/tbank-bridge/cmd"
)

func main() {
	cmd.Execute()
}
