// Command docbench fills a document store with generated user graphs and
// benchmarks read and write operations against it.
package main

import (
	"os"

	"github.com/AvishaiDotan/mongodb-functions/cmd/docbench/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
