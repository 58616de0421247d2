// Package settings turns the persisted preferences document into the
// collaborators a transaction needs.
package settings

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	v1 "github.com/cubeice/ice/apis/v1"
	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/filter"
)

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// Default returns the settings used when no document exists.
func Default() v1.Settings {
	return v1.Settings{
		Archive: v1.ArchiveSettings{
			Format:       string(engine.FormatZip),
			Method:       "default",
			Level:        engine.LevelUltra.String(),
			Encryption:   string(engine.EncryptionNone),
			SaveLocation: "source",
			Conflict:     "ask",
		},
		Compress: v1.CompressSettings{OpenMethod: "open_not_desktop"},
		Extract: v1.ExtractSettings{
			OpenMethod:      "open_not_desktop",
			RootDirectory:   "auto",
			RestoreMetadata: lo.ToPtr(true),
		},
		Filter: v1.FilterSettings{Enabled: lo.ToPtr(true)},
	}
}

// Parse parses a YAML or JSON settings document and validates it. Fields
// left out take their defaults.
func Parse(data []byte) (v1.Settings, error) {
	var settings v1.Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return v1.Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	applyDefaults(&settings)

	if err := defaultValidator.Struct(settings); err != nil {
		return v1.Settings{}, fmt.Errorf("failed to validate settings: %w", err)
	}

	return settings, nil
}

func applyDefaults(s *v1.Settings) {
	def := Default()
	s.Archive.Format = lo.CoalesceOrEmpty(s.Archive.Format, def.Archive.Format)
	s.Archive.Method = lo.CoalesceOrEmpty(s.Archive.Method, def.Archive.Method)
	s.Archive.Level = lo.CoalesceOrEmpty(s.Archive.Level, def.Archive.Level)
	s.Archive.Encryption = lo.CoalesceOrEmpty(s.Archive.Encryption, def.Archive.Encryption)
	s.Archive.SaveLocation = lo.CoalesceOrEmpty(s.Archive.SaveLocation, def.Archive.SaveLocation)
	s.Archive.Conflict = lo.CoalesceOrEmpty(s.Archive.Conflict, def.Archive.Conflict)
	s.Compress.OpenMethod = lo.CoalesceOrEmpty(s.Compress.OpenMethod, def.Compress.OpenMethod)
	s.Extract.OpenMethod = lo.CoalesceOrEmpty(s.Extract.OpenMethod, def.Extract.OpenMethod)
	s.Extract.RootDirectory = lo.CoalesceOrEmpty(s.Extract.RootDirectory, def.Extract.RootDirectory)
	if s.Extract.RestoreMetadata == nil {
		s.Extract.RestoreMetadata = def.Extract.RestoreMetadata
	}
	if s.Filter.Enabled == nil {
		s.Filter.Enabled = def.Filter.Enabled
	}
}

// Load reads the settings document at path. A missing file yields the
// defaults.
func Load(afs afero.Fs, path string) (v1.Settings, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := afero.ReadFile(afs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return v1.Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	return Parse(data)
}

// BuildFilter compiles the filter configured in s. A disabled filter still
// applies user patterns and expressions but drops the built-in list.
func BuildFilter(logger *zap.Logger, s v1.FilterSettings) (*filter.Set, error) {
	patterns := s.Patterns
	if s.Enabled == nil || *s.Enabled {
		patterns = append(append([]string(nil), filter.Builtin...), patterns...)
	}
	return filter.New(logger.Named("filter"), patterns, s.Expressions)
}
