package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuthConfigFromEnv reads the OAuth client from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE. It reports ok=false when neither is set.
func OAuthConfigFromEnv() (cfg *oauth2.Config, ok bool, err error) {
	b, ok, err := readEnvJSON("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err = goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, true, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, true, nil
}

// TokenFromEnv reads a saved token from GOOGLE_OAUTH_TOKEN_JSON or
// GOOGLE_OAUTH_TOKEN_FILE.
func TokenFromEnv() (*oauth2.Token, error) {
	b, ok, err := readEnvJSON("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// clientOptionsFromEnv prefers an OAuth user token when an OAuth client is
// configured and falls back to service account credentials.
func clientOptionsFromEnv(ctx context.Context) ([]goption.ClientOption, error) {
	cfg, ok, err := OAuthConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if ok {
		tok, err := TokenFromEnv()
		if err != nil {
			return nil, err
		}
		return []goption.ClientOption{goption.WithTokenSource(cfg.TokenSource(ctx, tok))}, nil
	}

	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

func readEnvJSON(inlineKey, fileKey string) ([]byte, bool, error) {
	if inline := strings.TrimSpace(os.Getenv(inlineKey)); inline != "" {
		return []byte(inline), true, nil
	}
	file := strings.TrimSpace(os.Getenv(fileKey))
	if file == "" {
		return nil, false, nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, true, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return b, true, nil
}
