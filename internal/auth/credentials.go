package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CredentialProvider supplies the bearer token for outgoing API requests.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no API token configured")
	}
	return string(t), nil
}

// FileToken reads the token from a file on every call, so a rotated token
// takes effect without a restart.
type FileToken string

func (p FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", string(p))
	}
	return token, nil
}

// EnvToken reads the token from the named environment variable.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(string(e)))
	if token == "" {
		return "", fmt.Errorf("environment variable %s is not set", string(e))
	}
	return token, nil
}
