package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotenv seeds the process environment from the given files (default ".env").
// Variables already present in the environment win. Missing files are not an error.
func LoadDotenv(files ...string) (bool, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loaded := false
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		loaded = true
	}
	return loaded, nil
}
