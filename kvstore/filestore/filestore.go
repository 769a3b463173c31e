package filestore

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-tenant-session/kvstore"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	formatVersion = 1
	saltLength    = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var ErrDecrypt = errors.New("filestore: unable to decrypt store, wrong secret?")

var _ kvstore.Store = (*FileStore)(nil)

// FileStore keeps every value in a single JSON file. With a secret the file
// body is sealed with XChaCha20-Poly1305 under an argon2id derived key.
type FileStore struct {
	path   string
	secret []byte

	lock    sync.Mutex
	keySalt []byte
	key     []byte
}

type envelope struct {
	Version int               `json:"v"`
	Entries map[string]string `json:"entries,omitempty"`
	Salt    []byte            `json:"salt,omitempty"`
	Nonce   []byte            `json:"nonce,omitempty"`
	Sealed  []byte            `json:"sealed,omitempty"`
}

type Option func(*FileStore)

// WithSecret enables encryption at rest.
func WithSecret(secret string) Option {
	return func(fs *FileStore) {
		if secret != "" {
			fs.secret = []byte(secret)
		}
	}
}

func New(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("filestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	fs := &FileStore{path: path}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entries, err := fs.load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

func (fs *FileStore) Set(_ context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entries, err := fs.load()
	if err != nil {
		return err
	}
	entries[key] = value
	return fs.save(entries)
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entries, err := fs.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return fs.save(entries)
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("filestore: parse: %w", err)
	}

	if env.Sealed == nil {
		if env.Entries == nil {
			env.Entries = map[string]string{}
		}
		return env.Entries, nil
	}

	if fs.secret == nil {
		return nil, ErrDecrypt
	}
	aead, err := fs.aead(env.Salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, env.Nonce, env.Sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	entries := map[string]string{}
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("filestore: parse sealed entries: %w", err)
	}
	return entries, nil
}

func (fs *FileStore) save(entries map[string]string) error {
	env := envelope{Version: formatVersion}

	if fs.secret == nil {
		env.Entries = entries
	} else {
		salt := fs.keySalt
		if salt == nil {
			salt = make([]byte, saltLength)
			if _, err := rand.Read(salt); err != nil {
				return fmt.Errorf("filestore: salt: %w", err)
			}
		}
		aead, err := fs.aead(salt)
		if err != nil {
			return err
		}
		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("filestore: nonce: %w", err)
		}
		plain, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("filestore: encode entries: %w", err)
		}
		env.Salt = salt
		env.Nonce = nonce
		env.Sealed = aead.Seal(nil, nonce, plain, nil)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".kv-*")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}

// aead derives (and caches) the key for salt. Callers hold fs.lock.
func (fs *FileStore) aead(salt []byte) (cipher.AEAD, error) {
	if fs.key == nil || !bytes.Equal(fs.keySalt, salt) {
		fs.key = argon2.IDKey(fs.secret, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
		fs.keySalt = append([]byte(nil), salt...)
	}
	aead, err := chacha20poly1305.NewX(fs.key)
	if err != nil {
		return nil, fmt.Errorf("filestore: cipher: %w", err)
	}
	return aead, nil
}
