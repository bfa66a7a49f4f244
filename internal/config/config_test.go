package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStoreDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	env := Environment{SettingsFile: filepath.Join(dir, "settings.yml")}
	s, err := NewStore(env)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p := s.Get()
	if !p.AutoReconnect || !p.ShowOSD {
		t.Fatalf("expected defaults-on prefs, got %+v", p)
	}
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	env := Environment{SettingsFile: filepath.Join(dir, "settings.yml")}
	s, err := NewStore(env)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	p := s.Get()
	p.LastSourceName = "CamA (HostX)"
	p.AutoReconnect = false
	if err := s.Update(p); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := NewStore(env)
	if err != nil {
		t.Fatalf("reload NewStore: %v", err)
	}
	got := reloaded.Get()
	if got.LastSourceName != "CamA (HostX)" || got.AutoReconnect {
		t.Fatalf("expected persisted prefs to survive reload, got %+v", got)
	}
}

func TestUpdateLeavesNoTmpFileBehind(t *testing.T) {
	dir := t.TempDir()
	env := Environment{SettingsFile: filepath.Join(dir, "settings.yml")}
	s, _ := NewStore(env)
	if err := s.Update(DefaultPreferences()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := os.Stat(env.SettingsFile + ".tmp"); err == nil {
		t.Fatal("expected .tmp file to be renamed away, not left behind")
	}
}
