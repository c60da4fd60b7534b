// Package config loads the static reference configuration the pipeline
// consumes: model tiers, folder mappings, and the grade/alias tables.
// Settings are loaded once at startup and never mutated afterwards.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/paperflow/internal/model"
)

// GeminiSettings selects the model tiers and escalation policy.
type GeminiSettings struct {
	APIKey              string  `mapstructure:"api_key"`
	FlashModel          string  `mapstructure:"flash_model"`
	ProModel            string  `mapstructure:"pro_model"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	EnableEscalation    bool    `mapstructure:"enable_escalation"`
}

// DriveSettings names the fixed folders and download behavior.
type DriveSettings struct {
	InboxFolderID       string            `mapstructure:"inbox_folder_id"`
	PhotoFolderID       string            `mapstructure:"photo_folder_id"`
	ChildrenFolderID    string            `mapstructure:"children_folder_id"`
	CategoryFolders     map[string]string `mapstructure:"category_folders"`
	DownloadTimeout     time.Duration     `mapstructure:"download_timeout"`
	MaxDownloadAttempts int               `mapstructure:"max_download_attempts"`
}

// Child is one child's base grade and the alias spellings that resolve to
// the canonical name.
type Child struct {
	Name      string   `mapstructure:"name"`
	BaseGrade int      `mapstructure:"base_grade"`
	Aliases   []string `mapstructure:"aliases"`
}

// PreschoolClass labels one preschool grade code.
type PreschoolClass struct {
	Code  int    `mapstructure:"code"`
	Name  string `mapstructure:"name"`
	Emoji string `mapstructure:"emoji"`
}

// SharedGroup files several children's documents into one folder.
type SharedGroup struct {
	Children   []string `mapstructure:"children"`
	FolderName string   `mapstructure:"folder_name"`
	Label      string   `mapstructure:"label"`
	Emoji      string   `mapstructure:"emoji"`
}

// GradeSettings holds the static tables the grade resolver runs on.
type GradeSettings struct {
	BaseFiscalYear   int              `mapstructure:"base_fiscal_year"`
	GraduationGrade  int              `mapstructure:"graduation_grade"`
	Children         []Child          `mapstructure:"children"`
	PreschoolClasses []PreschoolClass `mapstructure:"preschool_classes"`
	SharedGroups     []SharedGroup    `mapstructure:"shared_groups"`
}

// OAuthSettings configures the installed-app OAuth flow for the Google
// collaborators that cannot use service-account credentials.
type OAuthSettings struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenFile    string `mapstructure:"token_file"`
}

// Settings is the full load-once configuration surface.
type Settings struct {
	Gemini    GeminiSettings `mapstructure:"gemini"`
	Drive     DriveSettings  `mapstructure:"drive"`
	Grades    GradeSettings  `mapstructure:"grades"`
	OAuth     OAuthSettings  `mapstructure:"oauth"`
	Calendar  string         `mapstructure:"calendar_id"`
	TaskList  string         `mapstructure:"task_list_id"`
	ServeAddr string         `mapstructure:"serve_addr"`
}

// SupportedMimeTypes are the formats the pipeline will classify. Anything
// else is skipped without touching the document.
var SupportedMimeTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
}

// Load reads Settings from viper, applying defaults for everything the
// config file omits.
func Load(v *viper.Viper) (Settings, error) {
	setDefaults(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := validate(s); err != nil {
		return Settings{}, err
	}

	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gemini.flash_model", "gemini-2.0-flash")
	v.SetDefault("gemini.pro_model", "gemini-2.0-pro")
	v.SetDefault("gemini.confidence_threshold", 0.8)
	v.SetDefault("gemini.enable_escalation", true)

	v.SetDefault("drive.download_timeout", 2*time.Minute)
	v.SetDefault("drive.max_download_attempts", 5)

	v.SetDefault("grades.graduation_grade", 12)

	v.SetDefault("oauth.token_file", "~/.config/paperflow/token.json")
	v.SetDefault("serve_addr", ":8080")
}

func validate(s Settings) error {
	if s.Gemini.ConfidenceThreshold < 0 || s.Gemini.ConfidenceThreshold > 1 {
		return fmt.Errorf("gemini.confidence_threshold %.2f out of range [0,1]", s.Gemini.ConfidenceThreshold)
	}
	seen := make(map[string]bool, len(s.Grades.Children))
	for _, c := range s.Grades.Children {
		if c.Name == "" {
			return fmt.Errorf("grades.children entry with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate child %q in grades.children", c.Name)
		}
		seen[c.Name] = true
	}
	for cat := range s.Drive.CategoryFolders {
		if !model.Category(cat).Valid() {
			return fmt.Errorf("drive.category_folders key %q is not a known category", cat)
		}
	}
	return nil
}
