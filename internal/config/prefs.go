package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// PrefsFile holds the parsed contents of the legacy `$name value` prefs
// grammar (spec §6.4). Grounded on original_source/masterd/core.cc's
// preference-loading routine, which this hand-rolled parser reproduces:
// no example repo in the corpus implements this exact `#`-commented,
// `$key value` line format, so this is the one place in the project that
// is justifiably stdlib-only rather than library-backed.
type PrefsFile struct {
	values    map[string]string
	addresses []string
}

// defaultPrefsLines is written verbatim when no prefs file exists, so the
// file on disk documents every recognised key even before an operator has
// touched it.
var defaultPrefsLines = []string{
	"# masterd preferences file",
	"# Line grammar: $name value ; lines starting with # are comments.",
	"$name masterd",
	"$region US",
	"$address 0.0.0.0:28002",
	"$port 28002",
	"$heartbeat 300",
	"$verbosity 2",
	"$timestamp 1",
	"$flood::MaxTickets 300",
	"$flood::TicketsResetTime 60",
	"$flood::BanTime 300",
	"$flood::ForgetTime 3600",
	"$flood::TicksOnBadMessage 50",
	"$challengeMode 0",
	"$testingMode 0",
	"$maxSessionsPerPeer 10",
	"$sessionTimeoutSeconds 120",
}

// prefsKeyToViperKey maps the prefs file's key spelling to the viper key
// spelling Load reads, lower-cased and with "::" flattened to ".".
func prefsKeyToViperKey(key string) string {
	key = strings.ReplaceAll(key, "::", ".")
	return strings.ToLower(key)
}

// LoadPrefsFile reads path, or writes defaultPrefsLines and returns the
// parsed defaults if the file does not exist (spec §6.4: "Missing file →
// defaults written to disk, then continue with defaults").
func LoadPrefsFile(path string) (*PrefsFile, error) {
	if path == "" {
		return &PrefsFile{values: map[string]string{}}, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if werr := writeDefaultPrefs(path); werr != nil {
			return nil, werr
		}
		return parsePrefsLines(defaultPrefsLines), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open prefs file %s: %w", path, err)
	}
	defer f.Close()

	return parsePrefs(f), nil
}

func writeDefaultPrefs(path string) error {
	content := strings.Join(defaultPrefsLines, "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0o644)
}

func parsePrefs(f *os.File) *PrefsFile {
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return parsePrefsLines(lines)
}

func parsePrefsLines(lines []string) *PrefsFile {
	pf := &PrefsFile{values: make(map[string]string)}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "$") {
			slog.Warn("prefs file: ignoring malformed line", "line", raw)
			continue
		}
		rest := strings.TrimPrefix(line, "$")
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			slog.Warn("prefs file: ignoring line with no value", "line", raw)
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if !isRecognisedPrefsKey(key) {
			slog.Warn("prefs file: unknown key", "key", key)
		}
		if key == "address" {
			pf.addresses = append(pf.addresses, value)
			continue
		}
		pf.values[key] = value
	}
	return pf
}

func isRecognisedPrefsKey(key string) bool {
	switch key {
	case "name", "region", "address", "port", "heartbeat", "verbosity",
		"timestamp", "flood::MaxTickets", "flood::TicketsResetTime",
		"flood::BanTime", "flood::ForgetTime", "flood::TicksOnBadMessage",
		"challengeMode", "testingMode", "maxSessionsPerPeer",
		"sessionTimeoutSeconds":
		return true
	default:
		return false
	}
}

// ApplyTo overlays the parsed prefs values onto v, so viper remains the
// single source Load reads from regardless of whether a setting
// came from an environment variable or the legacy prefs file. The "address"
// key may repeat in the source file and is therefore accumulated, not
// overwritten.
func (pf *PrefsFile) ApplyTo(v *viper.Viper) {
	for key, value := range pf.values {
		v.Set(prefsKeyToViperKey(key), value)
	}
	if len(pf.addresses) > 0 {
		v.Set("address", pf.addresses)
	}
}
