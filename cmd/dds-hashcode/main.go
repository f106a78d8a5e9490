// dds-hashcode is an offline tool for inspecting and converting BDOC and DDOC hashcode containers.
package main

import "github.com/eid-tools/dds-hashcode/internal/cli"

func main() {
	cli.Execute()
}
