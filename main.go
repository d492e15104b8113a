package main

import "github.com/naka-gawa/geoeditors/cmd"

func main() {
	cmd.Execute()
}
