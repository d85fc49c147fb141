package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"DealPilot/sdk/go/dealpilot"
)

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc, error) {
	d, err := time.ParseDuration(rootFlags.timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --timeout: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, cancel, nil
}

// parseParams merges --params-json with repeated --param key=value pairs.
// Values that look like numbers, booleans or JSON arrays/objects are decoded.
func parseParams(pairs []string, rawJSON string) (map[string]any, error) {
	params := make(map[string]any)
	if strings.TrimSpace(rawJSON) != "" {
		if err := json.Unmarshal([]byte(rawJSON), &params); err != nil {
			return nil, fmt.Errorf("invalid --params-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		params[key] = paramValue(strings.TrimSpace(value))
	}
	return params, nil
}

func paramValue(raw string) any {
	if raw == "" {
		return raw
	}
	switch raw[0] {
	case '[', '{':
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	// "0987" stays a string so phone numbers and pin codes survive.
	if len(raw) > 1 && raw[0] == '0' && raw[1] != '.' {
		return raw
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func newClient() (*dealpilot.Client, error) {
	// The env fallback is read here so values from --env-file apply.
	token := rootFlags.token
	if token == "" {
		token = os.Getenv("DEALPILOT_TOKEN")
	}
	return dealpilot.NewClient(rootFlags.addr, dealpilot.WithToken(token))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
