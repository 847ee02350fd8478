package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside a project directory.
const (
	modelFileName  = "model.yaml"
	paramsFileName = "parameters.yaml"
)

// resolveProjectArgs maps command arguments to the two project files.
// One argument names a project directory holding model.yaml and
// parameters.yaml; two arguments name the files directly.
func resolveProjectArgs(args []string) (modelPath, paramsPath string, err error) {
	switch len(args) {
	case 1:
		dir := args[0]
		info, statErr := os.Stat(dir)
		if statErr != nil {
			return "", "", fmt.Errorf("project directory %s: %w", dir, statErr)
		}
		if !info.IsDir() {
			return "", "", fmt.Errorf("%s is not a directory; pass <model.yaml> <parameters.yaml> for explicit files", dir)
		}
		return filepath.Join(dir, modelFileName), filepath.Join(dir, paramsFileName), nil
	case 2:
		return args[0], args[1], nil
	default:
		return "", "", fmt.Errorf("expected a project directory or <model.yaml> <parameters.yaml>")
	}
}
