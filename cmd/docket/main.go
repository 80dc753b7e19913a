// Docket pipeline CLI: runs the enrichment, extraction, verification,
// roundup and answering stages, the maintenance passes, and the read-only
// API server.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
