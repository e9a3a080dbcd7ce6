package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// token returns an HS256 JWT accepted by the API in local auth mode.
func token(secret, userID, audience string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("LOCAL_AUTH_SHARED_SECRET must be set")
	}
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func main() {
	var user string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "gen-token",
		Short: "Print an HS256 bearer token for local auth mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := token(os.Getenv("LOCAL_AUTH_SHARED_SECRET"), user, os.Getenv("AUTH0_AUDIENCE"), ttl)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "local-user", "subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := cmd.Execute(); err != nil {
		log.Fatalf("generate token: %v", err)
	}
}
