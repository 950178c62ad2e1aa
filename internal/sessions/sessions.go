// Package sessions finds the desktop sessions installed on the system
package sessions

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/linuxdeepin/go-lib/keyfile"
)

// DefaultDirs are searched in order; earlier directories win on duplicate keys
var DefaultDirs = []string{"/usr/share/wayland-sessions", "/usr/share/xsessions"}

// Session is one installed session. Key is the file name without .desktop,
// which is what the daemon expects in START_SESSION.
type Session struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	Comment string `yaml:"comment,omitempty"`
	Exec    string `yaml:"exec"`
	Type    string `yaml:"type"` // "wayland" or "x"
	Hidden  bool   `yaml:"-"`
}

const desktopEntry = "Desktop Entry"

// ParseFile reads the [Desktop Entry] group of a .desktop file. Localised
// keys such as Name[de] are ignored.
func ParseFile(path string) (Session, error) {
	kf := keyfile.NewKeyFile()
	if err := kf.LoadFromFile(path); err != nil {
		return Session{}, err
	}

	name, err := kf.GetString(desktopEntry, "Name")
	if err != nil || name == "" {
		return Session{}, errors.New("desktop entry has no Name")
	}

	s := Session{Name: unescape(name)}
	if comment, err := kf.GetString(desktopEntry, "Comment"); err == nil {
		s.Comment = unescape(comment)
	}
	if exec, err := kf.GetString(desktopEntry, "Exec"); err == nil {
		s.Exec = unescape(exec)
	}
	for _, key := range []string{"Hidden", "NoDisplay"} {
		if v, err := kf.GetBool(desktopEntry, key); err == nil && v {
			s.Hidden = true
		}
	}
	return s, nil
}

// unescape expands the \s \n \t \r and \\ sequences of desktop entry
// strings. Unknown sequences are kept.
func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}

	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i+1 == len(v) {
			b.WriteByte(v[i])
			continue
		}
		switch v[i+1] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(v[i])
			b.WriteByte(v[i+1])
		}
		i++
	}
	return b.String()
}

// Load lists the visible sessions found in dirs, sorted by name. Missing
// directories are skipped.
func Load(dirs ...string) ([]Session, error) {
	if len(dirs) == 0 {
		dirs = DefaultDirs
	}

	seen := map[string]bool{}
	var out []Session
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)

		for _, path := range matches {
			key := strings.TrimSuffix(filepath.Base(path), ".desktop")
			if seen[key] {
				continue
			}
			seen[key] = true

			s, err := ParseFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read session %s: %w", path, err)
			}
			if s.Hidden {
				continue
			}
			s.Key = key
			s.Type = sessionType(dir)
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Keys returns the session keys
func Keys(list []Session) []string {
	keys := make([]string, 0, len(list))
	for _, s := range list {
		keys = append(keys, s.Key)
	}
	return keys
}

func sessionType(dir string) string {
	if strings.Contains(filepath.Base(dir), "wayland") {
		return "wayland"
	}
	return "x"
}
