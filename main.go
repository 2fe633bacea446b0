package main

import "github.com/mselser95/arena-settle/cmd"

func main() {
	cmd.Execute()
}
