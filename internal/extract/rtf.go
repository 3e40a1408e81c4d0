package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// extractRTF converts an .rtf file with lu4p/cat, which works from a path.
func extractRTF(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extract RTF: %w", err)
	}
	return strings.TrimSpace(text), nil
}
