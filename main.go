// Package main is the entry point for the versionwatch service and CLI.
package main

import "github.com/ortelius/versionwatch/cmd"

func main() {
	cmd.Execute()
}
