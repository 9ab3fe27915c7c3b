// Command tools prepares a local setup: an Ed25519 key pair for the server
// and a bearer token per user id given on the command line.
package main

import (
	"chat-notify/auth"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func main() {
	outputDir := flag.String("out", "./test_data", "Directory for the key pair")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	issuer := flag.String("iss", auth.DefaultIssuer, "Token issuer")
	audience := flag.String("aud", auth.DefaultAudience, "Token audience")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fail("create %s: %v", *outputDir, err)
	}
	privatePath := filepath.Join(*outputDir, "private.pem")
	publicPath := filepath.Join(*outputDir, "public.pem")

	// An existing pair is reused so tokens stay valid across runs.
	if _, err := os.Stat(privatePath); os.IsNotExist(err) {
		if err := auth.GenerateKeyPair(privatePath, publicPath); err != nil {
			fail("generate key pair: %v", err)
		}
		fmt.Printf("Key pair written to %s\n", *outputDir)
	}
	fmt.Printf("AUTH_PUBLIC_KEY_PATH=%s\n", publicPath)

	signer, err := auth.LoadSigner(privatePath, *issuer, *audience)
	if err != nil {
		fail("%v", err)
	}
	for _, arg := range flag.Args() {
		userID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || userID <= 0 {
			fail("invalid user id %q", arg)
		}
		token, err := signer.GenerateToken(auth.Claims{UserID: userID}, *ttl)
		if err != nil {
			fail("token for %d: %v", userID, err)
		}
		fmt.Printf("user %d: %s\n", userID, token)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
