// Command showcolours prints the generated track colour palette.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/zer0complexity/killicker/pkg/palette"
)

var asHex = flag.Bool("hex", false, "Print hex strings instead of RGB triples")

func main() {
	flag.Parse()

	colours := palette.TrackColours()

	var out any
	if *asHex {
		hexes := make([]string, len(colours))
		for i, c := range colours {
			hexes[i] = c.Hex()
		}
		out = hexes
	} else {
		triples := make([][3]uint8, len(colours))
		for i, c := range colours {
			triples[i] = [3]uint8{c.R, c.G, c.B}
		}
		out = triples
	}

	data, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode palette: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
