// Command cargo-check-external-types reports external types that leak into
// a Rust library's public API. Install it as cargo-check-external-types to
// run it as `cargo check-external-types`.
package main

import (
	"os"

	"externaltypes/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
