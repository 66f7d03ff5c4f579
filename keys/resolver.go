package keys

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fedsig/go/http/signing"
)

// Static resolves keyIds from a fixed set of keys. Values may be public keys
// or []byte HMAC secrets.
type Static map[string]crypto.PublicKey

func (s Static) ResolveKey(_ context.Context, keyID string) (crypto.PublicKey, error) {
	if key, ok := s[keyID]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", signing.ErrUnknownKey, keyID)
}

// Dir resolves keyIds from files in a directory. A keyId is looked up as
// FileName(keyId) with a .pem or .pub extension for public keys, then .secret
// for HMAC secrets. Files are read on every lookup; wrap Dir in a Cache to
// avoid that.
type Dir struct {
	Path string
}

// FileName returns the base file name, without extension, that Dir uses for
// keyID.
func FileName(keyID string) string {
	return url.PathEscape(keyID)
}

func (d Dir) ResolveKey(_ context.Context, keyID string) (crypto.PublicKey, error) {
	name := FileName(keyID)
	if name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", signing.ErrUnknownKey, keyID)
	}

	for _, ext := range []string{".pem", ".pub"} {
		data, err := d.read(name + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ParsePublicKey(data)
	}

	data, err := d.read(name + ".secret")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", signing.ErrUnknownKey, keyID)
	}
	if err != nil {
		return nil, err
	}
	secret := bytes.TrimSpace(data)
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret for %s", ErrNoKey, keyID)
	}
	return secret, nil
}

func (d Dir) read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.Path, name))
}
