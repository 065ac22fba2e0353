package main

import (
	"bufio"
	"io"
	"strings"
)

// readNumbers reads one number per line. Blank lines and lines starting with
// '#' are skipped; a CSV line contributes its first column.
func readNumbers(r io.Reader) ([]string, error) {
	var numbers []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if first, _, ok := strings.Cut(line, ","); ok {
			line = strings.TrimSpace(first)
		}
		if line != "" {
			numbers = append(numbers, line)
		}
	}
	return numbers, sc.Err()
}
