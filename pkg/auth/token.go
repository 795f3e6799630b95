package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/killallgit/agentstream/pkg/config"
)

// TokenProvider returns the current bearer token. An empty token means the
// request is sent unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// TokenFunc adapts a function to TokenProvider
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// FileToken reads the token from a file on every call so rotated tokens are picked up
type FileToken struct {
	Path string
}

func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// FromConfig returns the provider described by the auth settings. A token
// file takes precedence over an inline token.
func FromConfig(cfg config.AuthConfig) TokenProvider {
	if cfg.TokenFile != "" {
		return FileToken{Path: cfg.TokenFile}
	}
	return StaticToken(cfg.Token)
}
