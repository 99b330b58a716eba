package secretstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		name            string
		value           string
		defaultProvider string
		wantProvider    string
		wantPath        string
		wantErr         bool
	}{
		{
			name:         "explicit provider",
			value:        "secret://vault/app/db",
			wantProvider: "vault",
			wantPath:     "app/db",
		},
		{
			name:            "default provider",
			value:           "secret:///app/db",
			defaultProvider: "local",
			wantProvider:    "local",
			wantPath:        "app/db",
		},
		{
			name:            "default provider without slash",
			value:           "secret://password",
			defaultProvider: "local",
			wantProvider:    "local",
			wantPath:        "password",
		},
		{
			name:    "missing provider",
			value:   "secret://password",
			wantErr: true,
		},
		{
			name:    "missing path",
			value:   "secret://vault/",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, ok, err := ParseRef(tc.value, tc.defaultProvider)
			if !ok {
				t.Fatalf("expected reference to be detected")
			}
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Provider != tc.wantProvider {
				t.Fatalf("provider=%q, want %q", ref.Provider, tc.wantProvider)
			}
			if ref.Path != tc.wantPath {
				t.Fatalf("path=%q, want %q", ref.Path, tc.wantPath)
			}
		})
	}
}

func TestResolverResolveString(t *testing.T) {
	tempDir := t.TempDir()
	secretsPath := filepath.Join(tempDir, "secrets.yaml")
	payload := "db:\n  password: s3cr3t\napi:\n  token: t0k3n\n"
	if err := os.WriteFile(secretsPath, []byte(payload), 0o600); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}

	resolver, err := NewResolver(Config{
		Providers: map[string]ProviderConfig{
			"local": {Type: "file", Path: secretsPath},
		},
	}, ResolverOptions{Mode: ResolveModeValue})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	resolved, replaced, err := resolver.ResolveString(context.Background(), "secret://local/db/password")
	if err != nil {
		t.Fatalf("resolve string: %v", err)
	}
	if !replaced {
		t.Fatalf("expected value to be replaced")
	}
	if resolved != "s3cr3t" {
		t.Fatalf("resolved=%q, want s3cr3t", resolved)
	}

	plain, replaced, err := resolver.ResolveString(context.Background(), "not-a-reference")
	if err != nil {
		t.Fatalf("resolve plain string: %v", err)
	}
	if replaced {
		t.Fatalf("plain value should not be replaced")
	}
	if plain != "not-a-reference" {
		t.Fatalf("plain=%q, want unchanged value", plain)
	}
}
