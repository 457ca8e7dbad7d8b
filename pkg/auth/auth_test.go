package auth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rerobots/client-go/pkg/api"
)

func writeTokenFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write token file: %v", err)
	}
	return path
}

func TestStatic(t *testing.T) {
	token, err := Static("deadbeef").Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "deadbeef" {
		t.Errorf("Token() = %q, want %q", token, "deadbeef")
	}

	if _, err := Static("").Token(); err == nil {
		t.Error("empty Static yielded a token, want error")
	}
}

func TestResolve(t *testing.T) {
	tokenFile := writeTokenFile(t, "from-file\n")

	tests := []struct {
		name      string
		literal   string
		tokenFile string
		ignoreEnv bool
		env       string
		want      string
		wantErr   bool
	}{
		{
			name:    "literal wins over file and environment",
			literal: "explicit",
			env:     "from-env",
			want:    "explicit",
		},
		{
			name:      "file wins over environment",
			tokenFile: tokenFile,
			env:       "from-env",
			want:      "from-file",
		},
		{
			name: "environment fallback",
			env:  "from-env",
			want: "from-env",
		},
		{
			name: "environment whitespace trimmed",
			env:  "  from-env\n",
			want: "from-env",
		},
		{
			name:      "ignored environment",
			env:       "from-env",
			ignoreEnv: true,
			wantErr:   true,
		},
		{
			name:    "no source at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(api.TokenEnvVar, tt.env)

			src, err := Resolve(tt.literal, tt.tokenFile, tt.ignoreEnv, zerolog.Nop())
			if tt.wantErr {
				if err == nil {
					t.Fatal("Resolve() returned nil error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			token, err := src.Token()
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if token != tt.want {
				t.Errorf("Token() = %q, want %q", token, tt.want)
			}
		})
	}
}

func TestResolveErrorNamesEnvVar(t *testing.T) {
	t.Setenv(api.TokenEnvVar, "")

	_, err := Resolve("", "", false, zerolog.Nop())
	if err == nil {
		t.Fatal("Resolve() returned nil error")
	}
	if !strings.Contains(err.Error(), api.TokenEnvVar) {
		t.Errorf("error %q does not name %s", err, api.TokenEnvVar)
	}
}

func TestFileSource(t *testing.T) {
	t.Run("trims surrounding whitespace", func(t *testing.T) {
		path := writeTokenFile(t, "  deadbeef\n")
		src, err := NewFileSource(path, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewFileSource() error = %v", err)
		}
		token, err := src.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if token != "deadbeef" {
			t.Errorf("Token() = %q, want %q", token, "deadbeef")
		}
	})

	t.Run("empty file rejected", func(t *testing.T) {
		path := writeTokenFile(t, "\n")
		if _, err := NewFileSource(path, zerolog.Nop()); err == nil {
			t.Error("NewFileSource() accepted an empty file")
		}
	})

	t.Run("missing file rejected", func(t *testing.T) {
		if _, err := NewFileSource("/nonexistent/token", zerolog.Nop()); err == nil {
			t.Error("NewFileSource() accepted a missing file")
		}
	})
}

func TestFileSourceReload(t *testing.T) {
	path := writeTokenFile(t, "first")
	src, err := NewFileSource(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	src.reload()

	token, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "second" {
		t.Errorf("Token() after reload = %q, want %q", token, "second")
	}

	// A half-written rotation must not wipe the working token.
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	src.reload()

	token, err = src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "second" {
		t.Errorf("Token() after bad reload = %q, want %q", token, "second")
	}
}

func TestWatchPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := NewFileSource(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Rotate by rename-into-place, the way credential managers do.
	next := filepath.Join(dir, "token.next")
	if err := os.WriteFile(next, []byte("second"), 0600); err != nil {
		t.Fatalf("write next: %v", err)
	}
	if err := os.Rename(next, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if token, err := src.Token(); err == nil && token == "second" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	token, _ := src.Token()
	t.Errorf("token after rotation = %q, want %q", token, "second")
}
