// cmd/nacos-probe/main.go
// Entrypoint for the nacos-probe CLI binary. Kept tiny: all logic lives in
// root.go and its sibling sub-command files.
package main

func main() {
	if err := Execute(); err != nil {
		exitWithErr(err)
	}
}
