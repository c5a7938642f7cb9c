package credential

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/longbridge/openapi-go/config"
)

// Environment variables that override the credential file.
const (
	EnvAppKey      = "LONGBRIDGE_APP_KEY"
	EnvAppSecret   = "LONGBRIDGE_APP_SECRET"
	EnvAccessToken = "LONGBRIDGE_ACCESS_TOKEN"
)

// Keys holds the three values the OpenAPI needs.
type Keys struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

// ReadKeys reads a key=value credential file and applies environment
// overrides. A missing file is fine when the environment supplies every key.
func ReadKeys(path string) (Keys, error) {
	kv, err := readFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Keys{}, err
	}

	keys := Keys{
		AppKey:      override(EnvAppKey, kv["api_key"]),
		AppSecret:   override(EnvAppSecret, kv["secret"]),
		AccessToken: override(EnvAccessToken, kv["access_token"]),
	}
	if keys.AppKey == "" || keys.AppSecret == "" || keys.AccessToken == "" {
		if err != nil {
			return Keys{}, fmt.Errorf("open credential file: %w", err)
		}
		return Keys{}, fmt.Errorf("credential file missing required fields (api_key, secret, access_token)")
	}
	return keys, nil
}

// Load reads credentials and returns a config.Config.
func Load(path string) (*config.Config, error) {
	keys, err := ReadKeys(path)
	if err != nil {
		return nil, err
	}

	cfg, err := config.New(
		config.WithConfigKey(keys.AppKey, keys.AppSecret, keys.AccessToken),
	)
	if err != nil {
		return nil, fmt.Errorf("create config: %w", err)
	}

	return cfg, nil
}

func readFile(path string) (map[string]string, error) {
	kv := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return kv, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return kv, fmt.Errorf("read credential file: %w", err)
	}
	return kv, nil
}

func override(env, value string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return value
}
