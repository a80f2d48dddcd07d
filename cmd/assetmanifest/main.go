// assetmanifest writes a browser manifest of the images below a site's
// assets directory.
package main

import (
	"os"

	"github.com/hupe1980/assetmanifest/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
