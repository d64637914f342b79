package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/aneeshlingala/grade-melon-nsd/internal/service"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/config"
)

func main() {
	var (
		studentID string
		name      string
		ttl       time.Duration
	)

	flag.StringVar(&studentID, "student", "", "Student ID placed in the token subject")
	flag.StringVar(&name, "name", "", "Display name claim")
	flag.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if studentID == "" {
		log.Fatal("-student is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, TTL: ttl})
	token, expiresAt, err := tokens.Issue(studentID, name)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Println(token)
	log.Printf("expires at %s", expiresAt.Format(time.RFC3339))
}
