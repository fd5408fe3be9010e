package main

import "github.com/thammarongsak/waibon-safe-room/cmd"

func main() {
	cmd.Execute()
}
