package main

import "github.com/fakeyudi/replaymock/cmd"

func main() {
	cmd.Execute()
}
