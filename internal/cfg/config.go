package cfg

import (
	"io"

	"github.com/pelletier/go-toml"
)

type Config struct {
	HTTPListenAddr            string             `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string             `toml:"https_server_listen_addr"`
	HTTPSCertFile             string             `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string             `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string             `toml:"github_webhook_endpoint"`
	HTTPMetricsEndpoint       string             `toml:"metrics_endpoint"`
	GithubWebHookSecret       string             `toml:"github_webhook_secret"`
	GithubAPIToken            string             `toml:"github_api_token"`
	LogFormat                 string             `toml:"log_format"`
	LogTimeKey                string             `toml:"log_time_key"`
	LogLevel                  string             `toml:"log_level"`
	Trigger                   Trigger            `toml:"trigger"`
	Git                       Git                `toml:"git"`
	Repositories              []GithubRepository `toml:"repository"`
}

type GithubRepository struct {
	Owner          string `toml:"owner"`
	RepositoryName string `toml:"repository"`
}

// Trigger describes the comment command that starts a rebase run.
// FilterQuery is an optional jq expression that is evaluated against the
// JSON representation of the webhook event and must return true.
type Trigger struct {
	Command     string `toml:"command"`
	FilterQuery string `toml:"filter_query"`
}

// Git contains the identity the bot commits with when a rebase rewrites
// commits. SigningKeyID is only used when the rewritten commits are
// eligible for signing.
type Git struct {
	BotName      string `toml:"bot_name"`
	BotEmail     string `toml:"bot_email"`
	SigningKeyID string `toml:"signing_key_id"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
