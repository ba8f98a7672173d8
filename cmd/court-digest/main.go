// Command court-digest summarizes newly issued Federal Circuit opinions and
// emails a daily digest. Schedule "court-digest check" from cron; it can run
// several times a day and only sends a digest when new opinions were stored.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
