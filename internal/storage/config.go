package storage

import (
	"os"
	"path/filepath"
)

// Config is the explicit storage configuration handed to constructors.
// There is no process-wide state; everything lives under DataRoot.
type Config struct {
	DataRoot     string // users/<name>/{transcripts,dataset,finetuned_models}
	TempDir      string // normalized audio and runner staging files
	RegistryPath string // SQLite user registry
}

// EnsureDirs creates the directories the config points at.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataRoot, c.TempDir, filepath.Dir(c.RegistryPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
