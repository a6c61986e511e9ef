// Package run resolves where a training run lives on disk and how it is
// named.
package run

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RootEnvVar overrides the training-root directory. When unset, the
// system temp directory is used.
const RootEnvVar = "ROLLOUT_TRAINING_PATH"

// Root returns the training-root directory.
func Root() string {
	if v := os.Getenv(RootEnvVar); v != "" {
		return v
	}
	return os.TempDir()
}

// TrainingDir returns the date-stamped directory under root that owns all
// runs started today.
func TrainingDir(root string, now time.Time) string {
	return filepath.Join(root, now.Format("2006-01-02"))
}

// FindSavePath claims the first unused "{policyName}_{n}" directory under
// trainingDir, with n starting at 1, and creates it. Creating the
// directory is what claims it, so concurrent runs cannot resolve to the
// same path.
func FindSavePath(trainingDir, policyName string) (string, error) {
	if err := os.MkdirAll(trainingDir, 0o750); err != nil {
		return "", fmt.Errorf("create training dir: %w", err)
	}
	for n := 1; ; n++ {
		path := filepath.Join(trainingDir, fmt.Sprintf("%s_%d", policyName, n))
		err := os.Mkdir(path, 0o750)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("claim save path: %w", err)
		}
	}
}
