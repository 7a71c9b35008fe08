package main

import "heapdb/cmd"

func main() {
	cmd.Execute()
}
