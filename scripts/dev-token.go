// Command dev-token mints an identity token for calling a local API.
//
//	go run ./scripts -sub owner-1 -email owner-1@example.com
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fuelsync/fuelsync/internal/auth"
)

type output struct {
	OwnerID   string    `json:"userId"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func main() {
	_ = godotenv.Load()

	var (
		secret   = flag.String("secret", os.Getenv("AUTH_JWT_SECRET"), "HS256 signing secret")
		issuer   = flag.String("issuer", os.Getenv("AUTH_ISSUER"), "Token issuer")
		audience = flag.String("audience", os.Getenv("AUTH_AUDIENCE"), "Token audience")
		subject  = flag.String("sub", "", "Owner ID (random when empty)")
		email    = flag.String("email", "dev@fuelsync.local", "Owner email")
		ttl      = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		format   = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is required")
		os.Exit(1)
	}
	if *subject == "" {
		*subject = uuid.NewString()
	}

	signer := auth.NewVerifier(auth.VerifierConfig{Secret: *secret, Issuer: *issuer, Audience: *audience})
	id := auth.Identity{OwnerID: *subject, Email: *email}
	token, err := signer.Sign(id, *issuer, *audience, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	// Round-trip so a misconfigured issuer or audience fails here, not at the API.
	if _, err := signer.Verify(token); err != nil {
		fmt.Fprintln(os.Stderr, "verify token:", err)
		os.Exit(1)
	}

	out := output{
		OwnerID:   id.OwnerID,
		Email:     id.Email,
		Token:     token,
		ExpiresAt: time.Now().Add(*ttl).UTC().Truncate(time.Second),
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
