package main

import "github.com/crc-mirror/crc-mirror/cmd"

func main() {
	cmd.Execute()
}
