package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testConf struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

func writeConf(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CONF_TEST_TOKEN", "s3cret")
	p := writeConf(t, "name: demo\ntoken: ${CONF_TEST_TOKEN}\n")

	var c testConf
	if err := Load(p, &c); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "demo" || c.Token != "s3cret" {
		t.Errorf("conf = %+v", c)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConf
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &c); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOptional_MissingFileIsNotAnError(t *testing.T) {
	c := testConf{Name: "default"}
	loaded, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &c)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if loaded {
		t.Error("loaded should be false for a missing file")
	}
	if c.Name != "default" {
		t.Errorf("target mutated: %+v", c)
	}
}

func TestLoadOptional_LoadsWhenPresent(t *testing.T) {
	p := writeConf(t, "name: from-file\n")
	var c testConf
	loaded, err := LoadOptional(p, &c)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if !loaded || c.Name != "from-file" {
		t.Errorf("loaded=%v conf=%+v", loaded, c)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := writeConf(t, "name: [unclosed\n")
	var c testConf
	if err := Load(p, &c); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
