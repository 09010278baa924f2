package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/limaxs-dev/chat-server/internal/auth"
	"github.com/limaxs-dev/chat-server/internal/crypto"
)

func main() {
	keyPath := flag.String("key", "keys/private-key.pem", "PEM-encoded RSA private key")
	userID := flag.String("user", "", "User UUID (token subject)")
	tenantID := flag.String("tenant", "", "Tenant ID")
	name := flag.String("name", "", "Display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -user <user-uuid> [-key <private-key.pem>] [-tenant <id>] [-name <name>] [-ttl 24h]")
		os.Exit(1)
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user ID: %v\n", err)
		os.Exit(1)
	}

	pemBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read key: %v\n", err)
		os.Exit(1)
	}
	key, err := crypto.ParsePrivateKey(pemBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid private key: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.Sign(key, auth.Identity{UserID: id, TenantID: *tenantID, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
