package cmd

import (
	"fmt"
	"io"
)

const banner = `
                      _            _
  _ __ ___   __ _ ___| |_ ___ _ __| | _____  ___ _ __
 | '_ ` + "`" + ` _ \ / _` + "`" + ` / __| __/ _ \ '__| |/ / _ \/ _ \ '_ \
 | | | | | | (_| \__ \ ||  __/ |  |   <  __/  __/ |_) |
 |_| |_| |_|\__,_|___/\__\___|_|  |_|\_\___|\___| .__/
                                                |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Master key administration - Version %s\x1b[0m\n\n", Version)
}
