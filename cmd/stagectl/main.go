// stagectl is the command-line tool for one-off stage operations and for
// inspecting recorded benchmark results.
package main

func main() {
	Execute()
}
