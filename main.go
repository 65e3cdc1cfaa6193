package main

import "github.com/guokai8/pathwaydb/cmd"

func main() {
	cmd.Execute()
}
