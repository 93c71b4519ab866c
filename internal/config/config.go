package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":3978"
	DefaultOpenIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	DefaultTokenIssuer       = "https://api.botframework.com"
	DefaultLoginHost         = "https://login.microsoftonline.com"
	DefaultBotAuthority      = "botframework.com"
	DefaultAnswerSource      = "teams"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Bot       BotConfig       `toml:"bot"`
	Platform  PlatformConfig  `toml:"platform"`
	Directory DirectoryConfig `toml:"directory"`
	Answer    AnswerConfig    `toml:"answer"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// BotConfig describes the deployment's bot registration model. A filled
// app_id/app_password pair means one global multi-tenant app registration;
// both empty means credentials are resolved per tenant via the directory.
type BotConfig struct {
	AppID              string `toml:"app_id"`
	AppPassword        string `toml:"app_password"`
	Authority          string `toml:"authority"`
	NotifyUnconfigured bool   `toml:"notify_unconfigured"`
}

type PlatformConfig struct {
	OpenIDMetadataURL string `toml:"openid_metadata_url" validate:"required,url"`
	TokenIssuer       string `toml:"token_issuer" validate:"required"`
	LoginHost         string `toml:"login_host" validate:"required,url"`
}

type DirectoryConfig struct {
	LookupURL     string `toml:"lookup_url" validate:"required,url"`
	APIKey        string `toml:"api_key" validate:"required"`
	InternalToken string `toml:"internal_token" validate:"required"`
}

type AnswerConfig struct {
	URL         string `toml:"url" validate:"required,url"`
	FeedbackURL string `toml:"feedback_url" validate:"omitempty,url"`
	Source      string `toml:"source"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Bot: BotConfig{
			Authority: DefaultBotAuthority,
		},
		Platform: PlatformConfig{
			OpenIDMetadataURL: DefaultOpenIDMetadataURL,
			TokenIssuer:       DefaultTokenIssuer,
			LoginHost:         DefaultLoginHost,
		},
		Answer: AnswerConfig{
			Source: DefaultAnswerSource,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets deployment environments override file values. Environment
// wins so secrets never have to live in the config file.
func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Server.Addr, "HTTP_ADDR")
	setFromEnv(&cfg.Log.Level, "LOG_LEVEL")
	setFromEnv(&cfg.Log.Format, "LOG_FORMAT")
	setFromEnv(&cfg.Bot.AppID, "TEAMS_BOT_APP_ID")
	setFromEnv(&cfg.Bot.AppPassword, "TEAMS_BOT_APP_PASSWORD")
	setFromEnv(&cfg.Bot.Authority, "TEAMS_BOT_AUTHORITY")
	setFromEnv(&cfg.Directory.LookupURL, "TENANT_LOOKUP_URL")
	setFromEnv(&cfg.Directory.APIKey, "ANON_API_KEY")
	setFromEnv(&cfg.Directory.InternalToken, "INTERNAL_API_TOKEN")
	setFromEnv(&cfg.Answer.URL, "RAG_API_URL")
	setFromEnv(&cfg.Answer.FeedbackURL, "RAG_FEEDBACK_URL")
	setFromEnv(&cfg.Answer.Source, "ANSWER_SOURCE")
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// Validate fails when required configuration is absent so the process can
// refuse to start instead of failing on the first request.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if (c.Bot.AppID == "") != (c.Bot.AppPassword == "") {
		return fmt.Errorf("bot app_id and app_password must be set together")
	}
	return nil
}
