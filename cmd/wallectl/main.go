// Command wallectl manages encrypted Ethereum wallets on the local machine and
// talks to a walle signer node.
package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp()
	defer a.close()

	root := newRootCmd(a)
	root.AddCommand(newShellCmd(a))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		a.close()
		os.Exit(1)
	}
}
