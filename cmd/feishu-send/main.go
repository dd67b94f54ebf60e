// Command feishu-send splits text the way the outbound adapter does and,
// with credentials configured, delivers it to a Feishu chat.
//
// Usage:
//
//	echo "long reply ..." | feishu-send split --limit 200
//	feishu-send send --to oc_xxx -f reply.md
//	feishu-send send --to ou_xxx --media https://example.com/chart.png "see chart"
//	feishu-send send --to oc_xxx --dry-run "preview only"
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "feishu-send:", err)
		os.Exit(1)
	}
}
