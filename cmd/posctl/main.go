// Command posctl: операторский CLI биллинга: создание счетов, приём платежей и просмотр истории через gRPC.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(dialBilling).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}
