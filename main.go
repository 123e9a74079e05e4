// Command creator-ingest runs the creator discovery, media listing and enrichment pipeline.
package main

import (
	"github.com/JakeFAU/creator-ingest/cmd"
)

func main() {
	cmd.Execute()
}
