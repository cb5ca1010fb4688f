package filter

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile is one parsed ignore file, scoped to the directory it was found
// in: its rules only apply to paths under Dir.
type IgnoreFile struct {
	Dir   string
	Rules []IgnoreRule
}

// IgnoreRule is a single glob line. Negated rules re-allow paths matched by
// an earlier rule; the last matching rule wins, as in gitignore.
type IgnoreRule struct {
	Pattern string
	Negate  bool
}

// ParseIgnoreLines parses the line-based filter/ignore format: `#` comments,
// blank lines skipped, leading `!` negates.
func ParseIgnoreLines(lines []string) []IgnoreRule {
	var rules []IgnoreRule
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule := IgnoreRule{Pattern: line}
		if strings.HasPrefix(line, "!") {
			rule.Negate = true
			rule.Pattern = strings.TrimPrefix(line, "!")
		}
		rules = append(rules, rule)
	}
	return rules
}

// LoadIgnoreFile reads and parses an ignore file. The file's directory
// becomes the rule scope.
func LoadIgnoreFile(path string) (IgnoreFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return IgnoreFile{}, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return IgnoreFile{}, err
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return IgnoreFile{}, err
	}
	return IgnoreFile{Dir: abs, Rules: ParseIgnoreLines(lines)}, nil
}

// Ignores reports whether abs is rejected by this file. Paths outside the
// file's directory are never affected.
func (f IgnoreFile) Ignores(abs string) bool {
	rel, err := filepath.Rel(f.Dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	ignored := false
	for _, rule := range f.Rules {
		if matchGlob(rule.Pattern, abs, f.Dir) {
			ignored = !rule.Negate
		}
	}
	return ignored
}
