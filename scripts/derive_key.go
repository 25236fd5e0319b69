// derive_key.go prints the public key for a hex-encoded wallet seed file.
// Usage: go run scripts/derive_key.go <seedfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/klingon-tech/plotchain/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <seedfile>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	seedHex := strings.TrimSpace(string(data))
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	key, err := wallet.IdentityFromSeed(seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	pub, err := key.PublicKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("pubkey=%s\n", pub.String())
}
