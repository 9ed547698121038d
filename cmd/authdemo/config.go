package main

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is read from AUTHDEMO_* environment variables, optionally seeded
// from a local .env file.
type Config struct {
	Issuer                string `validate:"required,url"`
	ClientID              string `validate:"required"`
	Scopes                []string
	Resources             []string
	RedirectURL           string `validate:"required,url"`
	PostLogoutRedirectURL string
	Listen                string `validate:"required"`
	DataFile              string `validate:"required"`
}

func loadConfig() (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AUTHDEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("data_file", "authdemo-tokens.json")
	v.SetDefault("redirect_url", "http://localhost:8080/callback")

	config := &Config{
		Issuer:                v.GetString("issuer"),
		ClientID:              v.GetString("client_id"),
		Scopes:                splitList(v.GetString("scopes")),
		Resources:             splitList(v.GetString("resources")),
		RedirectURL:           v.GetString("redirect_url"),
		PostLogoutRedirectURL: v.GetString("post_logout_redirect_url"),
		Listen:                v.GetString("listen"),
		DataFile:              v.GetString("data_file"),
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return config, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
