package swarm

import (
	"path/filepath"
	"strings"
)

// SanitizeName maps a client-supplied filename onto a fixed charset
// ([A-Za-z0-9._-], everything else becomes '_') so identical logical content
// produces an identical canonical payload regardless of client metadata. The
// canonical name is part of the info dict, so this is what keeps derived
// identifiers reproducible across independent uploads.
func SanitizeName(name string) string {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
