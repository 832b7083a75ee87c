package main

import (
	"fmt"
	"log"
	"os"

	"github.com/anhducle99/bluecode/internal/config"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 4 {
		fmt.Println("Usage: issue-token <name> [team-name] [team-id]")
		os.Exit(1)
	}

	identity := models.Identity{DisplayName: os.Args[1]}
	if len(os.Args) > 2 {
		identity.TeamName = os.Args[2]
	}
	if len(os.Args) > 3 {
		identity.TeamID = os.Args[3]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry)
	token, err := jwtService.GenerateAccessToken(identity)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Println(token)
}
