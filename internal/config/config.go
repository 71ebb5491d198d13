// Package config loads the pipeline's TOML configuration and resolves
// it to a concrete set of input files to process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the parsed [main] table.
type Config struct {
	Input        string
	Output       string
	FilenameMask []string
}

type fileConfig struct {
	Main struct {
		Input        string   `toml:"input"`
		Output       string   `toml:"output"`
		FilenameMask []string `toml:"filename_mask"`
	} `toml:"main"`
}

// Load reads and validates the TOML config at path. input is required;
// output defaults to "./output"; filename_mask is optional and, when
// present, is OR'd as a substring match against each candidate
// basename in FindFiles.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config file not found: %s", path)
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if fc.Main.Input == "" {
		return Config{}, fmt.Errorf("missing or invalid 'input' field in [main] (must be string)")
	}

	cfg := Config{
		Input:        fc.Main.Input,
		Output:       fc.Main.Output,
		FilenameMask: fc.Main.FilenameMask,
	}
	if cfg.Output == "" {
		cfg.Output = "./output"
	}

	return cfg, nil
}

// FindFiles enumerates the .csv files directly under cfg.Input,
// filtered by cfg.FilenameMask (OR'd substring match against the
// basename; an empty mask list includes every .csv file).
func FindFiles(cfg Config) ([]string, error) {
	info, err := os.Stat(cfg.Input)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("input directory does not exist or is not a directory: %s", cfg.Input)
	}

	entries, err := os.ReadDir(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var csvFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			csvFiles = append(csvFiles, filepath.Join(cfg.Input, e.Name()))
		}
	}

	if len(cfg.FilenameMask) == 0 {
		return csvFiles, nil
	}

	var result []string
	for _, path := range csvFiles {
		name := filepath.Base(path)
		for _, mask := range cfg.FilenameMask {
			if strings.Contains(name, mask) {
				result = append(result, path)
				break
			}
		}
	}
	return result, nil
}
