package gitrepo

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/hallvik/pagepress/internal/config"
)

// CreateAuth builds a go-git AuthMethod from an AuthConfig. Token credentials
// are resolved through the environment (token_env) before falling back to the
// inline value.
func CreateAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	if authCfg.IsZero() {
		return nil, nil
	}

	switch authCfg.Type {
	case config.AuthTypeToken:
		token := config.ResolveToken(authCfg)
		if token == "" {
			return nil, fmt.Errorf("token authentication requires a token (set %s or auth.token)", authCfg.TokenEnv)
		}
		// Forges accept tokens over HTTP basic auth with any username.
		return &http.BasicAuth{Username: "git", Password: token}, nil

	case config.AuthTypeBasic:
		if authCfg.Username == "" || authCfg.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: authCfg.Username, Password: authCfg.Password}, nil

	case config.AuthTypeSSH:
		if authCfg.KeyPath == "" {
			return nil, fmt.Errorf("ssh authentication requires key_path")
		}
		keys, err := gitssh.NewPublicKeysFromFile("git", authCfg.KeyPath, authCfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to load ssh key %s: %w", authCfg.KeyPath, err)
		}
		return keys, nil

	default:
		return nil, fmt.Errorf("unsupported auth type: %s", authCfg.Type)
	}
}
