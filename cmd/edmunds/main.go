// Command edmunds calls the Edmunds vehicle API over JSONP, serves an HTTP
// gateway that records calls, and runs a local mock of the API.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
