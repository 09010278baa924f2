package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/limaxs-dev/chat-server/internal/crypto"
)

func main() {
	dir := flag.String("out", "keys", "Directory to write private-key.pem and public-key.pem")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	priv, pub, err := crypto.GenerateKeyPair(*bits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate key pair: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", *dir, err)
		os.Exit(1)
	}

	privPath := filepath.Join(*dir, "private-key.pem")
	pubPath := filepath.Join(*dir, "public-key.pem")
	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write private key: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write public key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Private key: %s\n", privPath)
	fmt.Printf("Public key:  %s\n", pubPath)
}
