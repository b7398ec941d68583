package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AtRiskMedia/readership/internal/application/startup"
	"github.com/AtRiskMedia/readership/internal/infrastructure/security"
	"github.com/AtRiskMedia/readership/pkg/config"
)

func main() {
	configFile := flag.String("config", os.Getenv(config.FileEnvVar), "optional YAML configuration file")
	generateSecret := flag.Bool("generate-secret", false, "print a random dashboard JWT secret and exit")
	issueToken := flag.String("issue-token", "", "print a dashboard token for the given subject and exit")
	tokenRole := flag.String("token-role", "viewer", "role claim for -issue-token")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime for -issue-token")
	flag.Parse()

	if *generateSecret {
		secret, err := security.GenerateSecureKey(64)
		if err != nil {
			log.Fatalf("failed to generate secret: %v", err)
		}
		fmt.Println(secret)
		return
	}

	settings, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("configuration error: %v", err)
		}
		os.Exit(1)
	}
	settings.Apply()

	if *issueToken != "" {
		if settings.DashboardJWTSecret == "" {
			log.Fatal("DASHBOARD_JWT_SECRET must be set to issue tokens")
		}
		token, err := security.GenerateDashboardToken(*issueToken, *tokenRole, settings.DashboardJWTSecret, *tokenTTL)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if err := startup.Initialize(settings); err != nil {
		log.Fatalf("Application startup failed: %v", err)
	}

	log.Println("Application has shut down gracefully.")
}
