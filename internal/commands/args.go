package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/watchexec/watchexec/internal/models"
)

// ExpandArgfiles replaces every lone `@path` argument with the file's lines,
// one argument per line. Later command-line arguments override whatever the
// argfile contributes, so expansion happens in place.
func ExpandArgfiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "@") || len(arg) == 1 {
			out = append(out, arg)
			continue
		}
		lines, err := readLines(arg[1:])
		if err != nil {
			return nil, models.NewError(models.KindConfiguration, "argfile",
				fmt.Errorf("reading argfile %s: %w", arg[1:], err))
		}
		out = append(out, lines...)
	}
	return out, nil
}

// ReadWatchFile reads watch roots from a file, one path per line; `-` reads
// stdin.
func ReadWatchFile(path string) ([]string, error) {
	if path == "-" {
		return scanLines(os.Stdin)
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "watch-file",
			fmt.Errorf("reading watch file %s: %w", path, err))
	}
	return lines, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanLines(f)
}

func scanLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// parseEnvPairs validates repeatable KEY=VALUE flags.
func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, models.NewError(models.KindConfiguration, "env-pair",
				fmt.Errorf("environment variable %q must be KEY=VALUE", pair))
		}
		out[key] = value
	}
	return out, nil
}
