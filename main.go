package main

import "github.com/samsaffron/roundtable/cmd"

func main() {
	cmd.Execute()
}
