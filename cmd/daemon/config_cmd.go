// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/sportsdvr/internal/config"
)

func runConfigCLI(args []string) int {
	return configCLI(args, os.Stdout, os.Stderr)
}

func configCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sportsdvr config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  sportsdvr config dump [--file|-f config.yaml] [--format=yaml|json]")
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sportsdvr config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := resolveConfigPath(file)
	if configPath == "" {
		fmt.Fprintln(stderr, "Error: --file is required (SPORTSDVR_CONFIG is not set)")
		return 2
	}

	if _, err := config.NewLoader(configPath).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", configPath)
	return 0
}

// runConfigDump prints the effective configuration (defaults, file and
// environment) with secrets masked.
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sportsdvr config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file, format string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "yaml", "yml", "json":
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}

	cfg, err := config.NewLoader(resolveConfigPath(file)).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return 1
	}
	cfg = config.MaskSecrets(cfg)

	if format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
		return 1
	}
	_ = enc.Close()
	return 0
}
