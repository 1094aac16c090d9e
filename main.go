package main

import "github.com/adamgarcia4/goLearning/gossipfd/cmd"

func main() {
	cmd.Execute()
}
