package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize       = 32
	nonceSize     = 24
	keyFilePerm   = 0o600
	storeFilePerm = 0o600
	storeDirPerm  = 0o700
)

var (
	// ErrKeyFileMissing reports a store without its key file.
	ErrKeyFileMissing = errors.New("secret key file does not exist")
	// ErrDecrypt reports a value that does not open with the store key.
	ErrDecrypt = errors.New("decrypt secret")
)

// Store keeps API keys in a JSON file of secretbox-sealed values. The 32-byte key
// lives base64-encoded in a separate file created on first write.
type Store struct {
	Fs        afero.Fs
	KeyPath   string
	StorePath string
}

func NewStore(fs afero.Fs, keyPath, storePath string) Store {
	return Store{Fs: fs, KeyPath: keyPath, StorePath: storePath}
}

// Lookup decrypts the named key. A missing store or entry yields ErrSecretNotFound.
func (s Store) Lookup(name string) (string, error) {
	entries, err := s.readEntries()
	if err != nil {
		return "", err
	}
	sealed, ok := entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	key, err := s.readKey()
	if errors.Is(err, ErrKeyFileMissing) {
		return "", fmt.Errorf("%w: %s: %v", ErrSecretNotFound, name, err)
	}
	if err != nil {
		return "", err
	}
	return open(key, sealed)
}

// Set seals value under name, creating the key file and store when needed.
func (s Store) Set(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("secret name is blank")
	}
	key, err := s.readKey()
	if errors.Is(err, ErrKeyFileMissing) {
		key, err = s.generateKey()
	}
	if err != nil {
		return err
	}
	entries, err := s.readEntries()
	if err != nil {
		return err
	}
	sealed, err := seal(key, value)
	if err != nil {
		return err
	}
	entries[name] = sealed

	encoded, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode secret store: %w", err)
	}
	if err := s.Fs.MkdirAll(filepath.Dir(s.StorePath), storeDirPerm); err != nil {
		return fmt.Errorf("create secret store directory: %w", err)
	}
	if err := afero.WriteFile(s.Fs, s.StorePath, encoded, storeFilePerm); err != nil {
		return fmt.Errorf("write secret store %s: %w", s.StorePath, err)
	}
	return nil
}

// Names lists the stored secret names in order.
func (s Store) Names() ([]string, error) {
	entries, err := s.readEntries()
	if err != nil {
		return nil, err
	}
	return sortedKeys(entries), nil
}

func (s Store) readEntries() (map[string]string, error) {
	content, err := afero.ReadFile(s.Fs, s.StorePath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secret store %s: %w", s.StorePath, err)
	}
	entries := map[string]string{}
	if len(strings.TrimSpace(string(content))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("decode secret store %s: %w", s.StorePath, err)
	}
	return entries, nil
}

func (s Store) readKey() (*[keySize]byte, error) {
	content, err := afero.ReadFile(s.Fs, s.KeyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyFileMissing, s.KeyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read secret key %s: %w", s.KeyPath, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(content)))
	if err != nil || len(decoded) != keySize {
		return nil, fmt.Errorf("secret key %s is not a base64 encoded %d-byte key", s.KeyPath, keySize)
	}
	var key [keySize]byte
	copy(key[:], decoded)
	return &key, nil
}

func (s Store) generateKey() (*[keySize]byte, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	if dir := filepath.Dir(s.KeyPath); dir != "." {
		if err := s.Fs.MkdirAll(dir, storeDirPerm); err != nil {
			return nil, fmt.Errorf("create secret key directory: %w", err)
		}
	}
	encoded := base64.StdEncoding.EncodeToString(key[:])
	if err := afero.WriteFile(s.Fs, s.KeyPath, []byte(encoded+"\n"), keyFilePerm); err != nil {
		return nil, fmt.Errorf("write secret key %s: %w", s.KeyPath, err)
	}
	return &key, nil
}

func seal(key *[keySize]byte, value string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(value), &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func open(key *[keySize]byte, sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: malformed value", ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("%w: key mismatch", ErrDecrypt)
	}
	return string(plain), nil
}
