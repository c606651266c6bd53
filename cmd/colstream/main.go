/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/colstream/cmd/colstream/cmd"

func main() {
	cmd.Execute()
}
