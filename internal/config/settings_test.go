package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", s.Gemini.FlashModel)
	assert.Equal(t, "gemini-2.0-pro", s.Gemini.ProModel)
	assert.InDelta(t, 0.8, s.Gemini.ConfidenceThreshold, 0.0001)
	assert.True(t, s.Gemini.EnableEscalation)
	assert.Equal(t, 5, s.Drive.MaxDownloadAttempts)
	assert.Equal(t, 12, s.Grades.GraduationGrade)
	assert.Equal(t, ":8080", s.ServeAddr)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("gemini.confidence_threshold", 0.65)
	v.Set("gemini.enable_escalation", false)
	v.Set("drive.inbox_folder_id", "inbox-id")

	s, err := Load(v)
	require.NoError(t, err)

	assert.InDelta(t, 0.65, s.Gemini.ConfidenceThreshold, 0.0001)
	assert.False(t, s.Gemini.EnableEscalation)
	assert.Equal(t, "inbox-id", s.Drive.InboxFolderID)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "threshold above one",
			mutate:  func(v *viper.Viper) { v.Set("gemini.confidence_threshold", 1.5) },
			wantErr: "out of range",
		},
		{
			name: "duplicate child",
			mutate: func(v *viper.Viper) {
				v.Set("grades.children", []map[string]any{
					{"name": "ビクトル", "base_grade": 2},
					{"name": "ビクトル", "base_grade": 3},
				})
			},
			wantErr: "duplicate child",
		},
		{
			name: "child without a name",
			mutate: func(v *viper.Viper) {
				v.Set("grades.children", []map[string]any{
					{"base_grade": 2},
				})
			},
			wantErr: "empty name",
		},
		{
			name: "unknown category folder key",
			mutate: func(v *viper.Viper) {
				v.Set("drive.category_folders", map[string]string{
					"70_謎のカテゴリ": "folder-id",
				})
			},
			wantErr: "not a known category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.mutate(v)

			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("PAPERFLOW_TEST_DIR", "/tmp/paperflow")

	assert.Equal(t, "/tmp/paperflow/token.json", ExpandPath("$PAPERFLOW_TEST_DIR/token.json"))
	assert.Equal(t, "", ExpandPath(""))
	assert.NotContains(t, ExpandPath("~/config.yaml"), "~")
}
