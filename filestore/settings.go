package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"medreminder/dbtypes"

	"gopkg.in/yaml.v3"
)

// Settings is a YAML settings file.  Keys missing from the file keep their
// defaults.
type Settings struct {
	path string
}

func (s *Settings) Get(ctx context.Context) (*dbtypes.Settings, error) {
	settings := dbtypes.DefaultSettings()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while reading %s: %w", s.path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", s.path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	return settings, nil
}

// Put atomically replaces the settings file.  Settings that Get would reject
// are not written.
func (s *Settings) Put(ctx context.Context, settings *dbtypes.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("while marshaling settings: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("while writing %s: %w", s.path, err)
	}
	return nil
}
