package main

import "github.com/pageboost/pageboost/cmd"

func main() {
	cmd.Execute()
}
