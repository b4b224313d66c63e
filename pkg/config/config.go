// Package config loads the application configuration from the environment
// and the voice/language/style preferences from a per-user file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default model identifiers.
const (
	DefaultChatModel   = "gemini-2.5-flash"
	DefaultSearchModel = "gemini-2.5-flash"
	DefaultLiveModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultImageModel  = "gemini-2.5-flash-image-preview"
)

// Models names the model per operation.
type Models struct {
	Chat   string `validate:"required"`
	Search string `validate:"required"`
	Live   string `validate:"required"`
	Image  string `validate:"required"`
}

// Config is the environment-derived application configuration.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string `validate:"required"`

	// DatabaseURL enables the remote session store when set.
	DatabaseURL string `validate:"omitempty,uri"`

	// DataDir holds the local session database. Defaults under the OS
	// user data directory.
	DataDir string `validate:"required"`

	Models Models
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFromEnv reads configuration from HIKMAH_* variables (GEMINI_API_KEY
// is accepted for the key) and validates it.
func LoadFromEnv() (Config, error) {
	apiKey := os.Getenv("HIKMAH_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	dataDir := os.Getenv("HIKMAH_DATA_DIR")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		dataDir = base + string(os.PathSeparator) + "hikmah"
	}

	cfg := Config{
		APIKey:      apiKey,
		DatabaseURL: os.Getenv("HIKMAH_DATABASE_URL"),
		DataDir:     dataDir,
		Models: Models{
			Chat:   envOr("HIKMAH_CHAT_MODEL", DefaultChatModel),
			Search: envOr("HIKMAH_SEARCH_MODEL", DefaultSearchModel),
			Live:   envOr("HIKMAH_LIVE_MODEL", DefaultLiveModel),
			Image:  envOr("HIKMAH_IMAGE_MODEL", DefaultImageModel),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return Config{}, fmt.Errorf("config: %s", describeFieldError(verrs[0]))
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func describeFieldError(e validator.FieldError) string {
	switch e.Field() {
	case "APIKey":
		return "HIKMAH_API_KEY (or GEMINI_API_KEY) is required"
	case "DatabaseURL":
		return "HIKMAH_DATABASE_URL must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %q validation", e.Field(), e.Tag())
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
