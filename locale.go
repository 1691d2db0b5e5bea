package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lang/*.yaml
var bundledLocales embed.FS

type Locale struct {
	translations map[string]string
	locale       string
}

var globalLocale *Locale

// InitLocale initializes the global locale system
func InitLocale() error {
	locale := DetectSystemLocale()

	l, err := LoadLocale(locale)
	if err != nil {
		fmt.Printf("Warning: Failed to load locale '%s', falling back to en_US: %v\n", locale, err)
		l, err = LoadLocale("en_US")
		if err != nil {
			return fmt.Errorf("failed to load fallback locale en_US: %w", err)
		}
	}

	globalLocale = l
	return nil
}

// DetectSystemLocale reads LANG, LC_ALL, then LC_MESSAGES and strips the
// encoding suffix ("ja_JP.UTF-8" -> "ja_JP").
func DetectSystemLocale() string {
	for _, key := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if name := strings.Split(value, ".")[0]; name != "" && name != "C" && name != "POSIX" {
			return name
		}
	}
	return "en_US"
}

// LoadLocale prefers lang/<locale>.yaml next to the executable so
// translations can be edited without a rebuild, then the bundled copy.
func LoadLocale(locale string) (*Locale, error) {
	data, source, err := readLocale(locale)
	if err != nil {
		return nil, err
	}

	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse locale file %s: %w", source, err)
	}

	return &Locale{
		translations: translations,
		locale:       locale,
	}, nil
}

func readLocale(locale string) ([]byte, string, error) {
	if exePath, err := os.Executable(); err == nil {
		localeFile := filepath.Join(filepath.Dir(exePath), "lang", locale+".yaml")
		if data, err := os.ReadFile(localeFile); err == nil {
			return data, localeFile, nil
		}
	}

	name := "lang/" + locale + ".yaml"
	data, err := bundledLocales.ReadFile(name)
	if err != nil {
		return nil, name, fmt.Errorf("failed to read locale file %s: %w", name, err)
	}
	return data, name, nil
}

// T translates a key with optional parameters
// Usage: T("poll_checking") or T("session_cancelled", 12)
func T(key string, params ...interface{}) string {
	if globalLocale == nil {
		return key
	}

	translation, ok := globalLocale.translations[key]
	if !ok {
		return key
	}

	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}

	return translation
}

// GetLocale returns the current locale code (e.g., "en_US", "ja_JP")
func GetLocale() string {
	if globalLocale == nil {
		return "en_US"
	}
	return globalLocale.locale
}
