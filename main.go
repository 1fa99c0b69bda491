package main

import "github.com/mabhi256/heaprecorder/cmd"

func main() {
	cmd.Execute()
}
