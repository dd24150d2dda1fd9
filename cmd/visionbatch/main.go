package main

import "github.com/MeKo-Tech/visionbatch/cmd/visionbatch/cmd"

func main() {
	cmd.Execute()
}
