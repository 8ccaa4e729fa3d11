// Command codestatus renders editor activity into a status line and
// supervises the presence worker that publishes it.
package main

import (
	"os"

	"github.com/Iron-Ham/codestatus/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
