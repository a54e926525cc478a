package main

import (
	"fmt"

	"github.com/pc-m/asterisk-scale-poc/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
