package staging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/akila/media-converter/models"
)

// deliverable lists the extensions the delivery routes will serve.
var deliverable = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".aac": true, ".m4a": true, ".flac": true,
	".pdf": true, ".zip": true, ".docx": true, ".odt": true, ".rtf": true, ".png": true,
}

// NewName returns "<prefix>_<32 hex chars><ext>". The random part comes
// from a v4 UUID so two requests never share a name in practice.
func NewName(prefix, ext string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + token + ext
}

// SanitizeName reduces a client-supplied filename to its last path element.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// ValidName reports whether name can be used as-is to address a staged
// artifact: it must be its own basename and carry a deliverable extension.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	if filepath.Base(name) != name {
		return false
	}
	return deliverable[strings.ToLower(filepath.Ext(name))]
}

// Resolve maps a name taken from a URL onto a file in the output directory.
// The name is checked before the filesystem is touched.
func (s *Store) Resolve(name string) (string, error) {
	if !ValidName(name) {
		return "", models.ClientInput("Invalid filename")
	}
	path := filepath.Join(s.OutputDir, name)
	if filepath.Dir(path) != s.OutputDir {
		return "", models.ClientInput("Invalid filename")
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", models.NotFound("Not found")
	}
	return path, nil
}
