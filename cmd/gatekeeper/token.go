package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	jwttoken "gatekeeper/internal/jwt_token"
)

type tokenConfig struct {
	Secret string `env:"ADMIN_JWT_SECRET,unset"`
}

// mintToken prints an operator token for the admin API:
//
//	gatekeeper token -operator alice -ttl 24h
func mintToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	operator := fs.String("operator", "", "operator name recorded in the audit trail")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *operator == "" {
		return errors.New("-operator is required")
	}

	_ = godotenv.Load(".env")
	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	if cfg.Secret == "" {
		return errors.New("ADMIN_JWT_SECRET is not set")
	}

	signed, err := jwttoken.NewJWTService(cfg.Secret, tokenIssuer, tokenAudience).GenerateOperatorToken(*operator, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, signed)
	return err
}
