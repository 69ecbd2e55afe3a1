package cmd

import (
	"fmt"
)

const banner = `
  _____         _
 |_   _|_ _ ___| | _____ _ __   __ _  ___ ___
   | |/ _` + "`" + ` / __| |/ / __| '_ \ / _` + "`" + ` |/ __/ _ \
   | | (_| \__ \   <\__ \ |_) | (_| | (_|  __/
   |_|\__,_|___/_|\_\___/ .__/ \__,_|\___\___|
                        |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Multi-tenant To-do Service - Version %s\x1b[0m\n\n", Version)
}
