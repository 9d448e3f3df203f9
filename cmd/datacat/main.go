// Package main is the entry point for the datacat CLI binary.
package main

import "os"

func main() {
	os.Exit(execute())
}
