// Command gensecret prints a random hex key suitable for SECRET_KEY or WEBHOOK_SECRET
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretBytes = 32

func main() {
	n := pflag.IntP("bytes", "n", defaultSecretBytes, "Number of random bytes")
	count := pflag.IntP("count", "c", 1, "How many secrets to print")
	pflag.Parse()

	if *n < 16 {
		fmt.Fprintln(os.Stderr, "refusing to generate a secret shorter than 16 bytes")
		os.Exit(1)
	}

	for range *count {
		b := make([]byte, *n)
		if _, err := rand.Read(b); err != nil {
			fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(b))
	}
}
