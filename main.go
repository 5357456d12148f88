package main

import "github.com/xzl01/dlm/cmd"

func main() {
	cmd.Execute()
}
