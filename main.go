package main

import "github.com/ozonedb/ozone/cmd"

func main() {
	cmd.Execute()
}
