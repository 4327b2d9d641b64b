// Command gitcms-token runs the Git Gateway token exchange as an AWS
// Lambda function behind API Gateway.
package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/eringen/gitcms/tokenexchange"
)

type config struct {
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`
	GatewaySecret     string `env:"GIT_GATEWAY_SECRET,NETLIFY_IDENTITY_WEBHOOK_SECRET"`
	SiteURL           string `env:"SITE_URL,URL"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var cfg config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		logger.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	service := tokenexchange.New(tokenexchange.Config{
		SupabaseJWTSecret: cfg.SupabaseJWTSecret,
		GatewaySecret:     cfg.GatewaySecret,
		SiteURL:           cfg.SiteURL,
		Logger:            logger,
	})
	lambda.Start(tokenexchange.NewHandler(service, logger).Lambda)
}
