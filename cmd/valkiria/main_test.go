package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx/docxtest"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after id are moved first",
			args:     []string{"doc-1", "--signer", "u-1"},
			expected: []string{"--signer", "u-1", "doc-1"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"--signer", "u-1", "doc-1"},
			expected: []string{"--signer", "u-1", "doc-1"},
		},
		{
			name:     "id only returns unchanged",
			args:     []string{"doc-1"},
			expected: []string{"doc-1"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseRoles(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"hr", []string{"hr"}},
		{" hr , legal ,,", []string{"hr", "legal"}},
	}
	for _, tt := range tests {
		if got := parseRoles(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseRoles(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseGeometry(t *testing.T) {
	g, err := parseGeometry("2,72,100.5,150,40")
	if err != nil {
		t.Fatal(err)
	}
	want := models.Geometry{Page: 2, X: 72, Y: 100.5, Width: 150, Height: 40}
	if *g != want {
		t.Errorf("parseGeometry() = %+v, want %+v", *g, want)
	}
	if g, err := parseGeometry(""); g != nil || err != nil {
		t.Errorf("parseGeometry(\"\") = %v, %v; want nil, nil", g, err)
	}
	if _, err := parseGeometry("1,2"); err == nil {
		t.Error("expected error for short geometry")
	}
}

func TestLoadContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.yaml")
	content := `
kind: Certification
subject:
  full_name: "Ana Pérez"
  address:
    city: Bogotá
organization:
  name: Valkiria SAS
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	bundle, err := loadContext(path)
	if err != nil {
		t.Fatal(err)
	}
	if bundle.Kind != variables.KindCertification {
		t.Errorf("Kind = %q, want certification", bundle.Kind)
	}
	if bundle.Subject["full_name"] != "Ana Pérez" {
		t.Errorf("subject.full_name = %v", bundle.Subject["full_name"])
	}
	if bundle.Organization["name"] != "Valkiria SAS" {
		t.Errorf("organization.name = %v", bundle.Organization["name"])
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("kind: payroll\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadContext(bad); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := loadContext(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// t.TempDir() may sit behind a symlink (macOS /var); compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "test.db") {
		t.Errorf("database path = %s, want it relative to the config dir", cfg.Storage.DatabasePath)
	}
}

func TestInitializeComponents_localBackends(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: config.BackendSQLite, DatabasePath: filepath.Join(dir, "valkiria.db")},
		Blob:    config.BlobConfig{Backend: config.BackendDisk, Dir: filepath.Join(dir, "blobs")},
		Render:  config.RenderConfig{DisableLocal: true},
	}
	config.ApplyDefaults(cfg)

	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if got := c.Pipeline.Strategies(); len(got) != 0 {
		t.Errorf("Strategies() = %v, want none", got)
	}

	ctx := context.Background()
	tmpl, err := c.Generator.ImportTemplate(ctx, "Constancia", docxtest.Minimal("Hola {{Nombre}}"))
	if err != nil {
		t.Fatal(err)
	}
	stored, err := c.Storage.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stored.Placeholders, []string{"Nombre"}) {
		t.Errorf("Placeholders = %v, want [Nombre]", stored.Placeholders)
	}
	if stored.PreviewRef != "" {
		t.Errorf("PreviewRef = %q, want empty without converters", stored.PreviewRef)
	}
}
