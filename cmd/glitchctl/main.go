// Command glitchctl drives a capture scope and a target board through
// glitch campaigns and reports on the stored results.
package main

import "github.com/banshee-data/glitch.report/cmd/glitchctl/cmd"

func main() {
	cmd.Execute()
}
