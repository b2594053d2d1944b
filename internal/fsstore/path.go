package fsstore

import (
	"path/filepath"
	"strings"

	"github.com/kraklabs/cortex/internal/cortexerr"
)

// reservedNames mirrors the Windows device-name reserved set; the bank must
// be portable even though it usually runs on POSIX.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
}

// ValidatePath canonicalizes p and ensures it is rooted inside bankRoot.
// Returns the canonical absolute path, or PathEscape if p would resolve
// outside the bank.
func ValidatePath(bankRoot, p string) (string, error) {
	absRoot, err := filepath.Abs(bankRoot)
	if err != nil {
		return "", cortexerr.Wrap(cortexerr.Internal, "resolve bank root", err)
	}
	absRoot = filepath.Clean(absRoot)

	joined := filepath.Join(absRoot, p)
	canonical := filepath.Clean(joined)

	rel, err := filepath.Rel(absRoot, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", cortexerr.New(cortexerr.PathEscape, "path escapes the bank root: "+p)
	}

	return canonical, nil
}

// ValidateName rejects names that cannot safely become a single path
// component within the bank (spec §4.1 validate_name).
func ValidateName(n string) error {
	trimmed := strings.TrimSpace(n)
	if trimmed == "" {
		return cortexerr.New(cortexerr.Invalid, "name must not be empty")
	}
	if strings.Contains(n, "..") {
		return cortexerr.New(cortexerr.Invalid, "name must not contain '..'")
	}
	if filepath.IsAbs(n) || strings.ContainsAny(n, `\`) {
		return cortexerr.New(cortexerr.Invalid, "name must not be an absolute path")
	}
	for _, r := range n {
		if r < 0x20 || r == 0x7f {
			return cortexerr.New(cortexerr.Invalid, "name must not contain control characters")
		}
	}

	base := strings.ToLower(strings.TrimSuffix(filepath.Base(n), filepath.Ext(n)))
	if reservedNames[base] {
		return cortexerr.New(cortexerr.Invalid, "name uses a reserved device name: "+n)
	}

	if strings.HasSuffix(n, " ") || strings.HasSuffix(n, ".") {
		return cortexerr.New(cortexerr.Invalid, "name must not end in space or period")
	}
	if len(n) > 255 {
		return cortexerr.New(cortexerr.Invalid, "name exceeds 255 characters")
	}

	return nil
}
