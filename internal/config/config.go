// Package config implements environment bootstrap and Preferences
// persistence, following the same layout as similar Qt desktop apps:
// same ~/.config/<app> layout, same initlog()-style log bootstrap, same
// atomic write-tmp-then-rename save discipline, swapped from a
// per-camera RTSP config list to the five flat Preferences keys this
// spec names.
package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v2"
)

const appName = "ndi-ingest"

// Preferences holds the persisted user-facing settings.
type Preferences struct {
	AutoReconnect   bool   `yaml:"auto_reconnect"`
	ScreenAlwaysOn  bool   `yaml:"screen_always_on"`
	ShowOSD         bool   `yaml:"show_osd"`
	LastSourceName  string `yaml:"last_source_name,omitempty"`
	LastSourceURL   string `yaml:"last_source_url,omitempty"`
}

// DefaultPreferences returns the preference set a fresh install starts
// with (auto-reconnect and the on-screen overlay are on by default,
// matching a defaults-on stance for status indicators).
func DefaultPreferences() Preferences {
	return Preferences{AutoReconnect: true, ScreenAlwaysOn: false, ShowOSD: true}
}

// Environment holds the resolved runtime paths: the set of filesystem
// locations the running process needs, resolved once at startup.
type Environment struct {
	ConfigDir    string
	SettingsFile string
	HomeDir      string
	AppPath      string
	TmpDir       string
	DebugLogPath string
	OS           string
}

// Store owns the loaded Preferences plus the Environment paths, guarding
// concurrent Save calls.
type Store struct {
	mu   sync.Mutex
	env  Environment
	prefs Preferences
}

// InitializeEnvironment resolves config/log paths and wires stdlib `log`
// output to the debug log file (teacher's initlog()), returning the
// resolved Environment.
func InitializeEnvironment(debug bool) (Environment, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Environment{}, err
	}
	configDir := filepath.Join(homeDir, ".config", appName)
	if _, statErr := os.Stat(configDir); os.IsNotExist(statErr) {
		if mkErr := os.MkdirAll(configDir, 0755); mkErr != nil {
			return Environment{}, mkErr
		}
	}

	logPath := filepath.Join(configDir, "debug.log")
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return Environment{}, err
	}
	if debug {
		log.SetOutput(io.MultiWriter(file, os.Stdout))
	} else {
		log.SetOutput(file)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	env := Environment{
		ConfigDir:    configDir,
		SettingsFile: filepath.Join(configDir, "settings.yml"),
		HomeDir:      homeDir,
		AppPath:      appPath(),
		TmpDir:       os.TempDir(),
		DebugLogPath: logPath,
		OS:           runtime.GOOS,
	}
	log.Printf("App Path: %s", env.AppPath)
	log.Printf("Initializing environment...")
	return env, nil
}

func appPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return ""
	}
	realPath, err := filepath.EvalSymlinks(exePath)
	if err != nil {
		return ""
	}
	return filepath.Dir(realPath)
}

// NewStore loads Preferences from env.SettingsFile, falling back to
// DefaultPreferences if the file does not yet exist.
func NewStore(env Environment) (*Store, error) {
	s := &Store{env: env, prefs: DefaultPreferences()}
	b, err := os.ReadFile(env.SettingsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var p Preferences
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	s.prefs = p
	return s, nil
}

// Get returns a copy of the current Preferences.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Update replaces the Preferences and persists them atomically (write to
// a .tmp file, then rename, so a crash mid-write can't corrupt it).
func (s *Store) Update(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p

	tmp := s.env.SettingsFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&s.prefs); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	log.Printf("config: saving preferences to %s", s.env.SettingsFile)
	if err := os.Rename(tmp, s.env.SettingsFile); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
