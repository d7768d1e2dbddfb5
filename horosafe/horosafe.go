// Package horosafe holds the small security guards shared by sitegen
// packages: secret length, path confinement and bounded reads of upstream
// responses.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MinSecretLen is the minimum length of HMAC secrets (JWT HS256).
const MinSecretLen = 32

// MaxResponseBody caps reads of upstream error bodies and small JSON
// responses (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)
	ErrPathTraversal  = errors.New("horosafe: path escapes its base directory")
	ErrTooLarge       = errors.New("horosafe: body exceeds limit")
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// SafePath joins base and the slash-separated rel and fails when the result
// would land outside base. Used when project file paths are written to disk.
func SafePath(base, rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", ErrPathTraversal
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	root := filepath.Clean(base)
	joined := filepath.Join(root, filepath.FromSlash(rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// LimitedReadAll reads at most maxBytes from r and fails with ErrTooLarge
// when more is available.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return data, nil
}
