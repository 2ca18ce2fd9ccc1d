package extract

import (
	"context"
	"os"
	"strings"
)

// PlainText reads a file as UTF-8 text.
type PlainText struct{}

// Extract returns the file content. Invalid UTF-8 sequences become U+FFFD.
func (PlainText) Extract(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}
