// Package main provides the authentication helper tool.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/19dig/internal/api/rest"
	"github.com/osa030/19dig/internal/infra/config"
	"github.com/osa030/19dig/internal/infra/credential"
)

var (
	app        = kingpin.New("19dig-auth", "Authentication helper for 19dig")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()

	// token command
	tokenCmd  = app.Command("token", "Issue a bearer token for a user (development only)")
	tokenUser = tokenCmd.Arg("user-id", "User ID to embed in the token").Required().String()
	tokenTTL  = tokenCmd.Flag("ttl", "Token lifetime").Default("24h").Duration()

	// check-spotify command
	checkCmd = app.Command("check-spotify", "Verify Spotify client credentials")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case tokenCmd.FullCommand():
		issueToken(cfg, *tokenUser, *tokenTTL)
	case checkCmd.FullCommand():
		checkSpotify(cfg)
	}
}

func issueToken(cfg *config.Config, userID string, ttl time.Duration) {
	auth := rest.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.UserClaim, cfg.Auth.Issuer)
	token, err := auth.IssueToken(userID, ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Token Issued ===")
	fmt.Println("")
	fmt.Printf("User:    %s\n", userID)
	fmt.Printf("Expires: %s\n", time.Now().Add(ttl).Format(time.RFC3339))
	fmt.Println("")
	fmt.Println("Use it as:")
	fmt.Printf("Authorization: Bearer %s\n", token)
}

func checkSpotify(cfg *config.Config) {
	tokens, err := credential.NewClientCredentials(credential.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		Margin:       cfg.Spotify.TokenMargin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	token, err := tokens.Acquire(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Spotify credential exchange failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Spotify Credentials OK ===")
	fmt.Printf("Token type: %s\n", token.TokenType)
	fmt.Printf("Expires:    %s\n", token.Expiry.Format(time.RFC3339))
}
