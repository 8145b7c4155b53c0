package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/GophLock/internal/seal"
)

// fileDocument is the on-disk layout of a File store.
type fileDocument struct {
	Salt    string            `json:"salt"`
	Items   map[string]string `json:"items"`
	Version int64             `json:"version"`
}

// File is a Store persisted as a JSON document. Every value is encrypted at
// rest under a key derived from the device key and a salt kept in the file.
type File struct {
	path   string
	sealer *seal.Sealer

	mu  sync.Mutex
	doc fileDocument
}

// OpenFile loads the store at path, creating an empty one if the file does
// not exist yet.
func OpenFile(path string, c *seal.Cipher, deviceKey string) (*File, error) {
	f := &File{path: path}
	if err := f.load(); err != nil {
		return nil, err
	}
	salt, err := base64.StdEncoding.DecodeString(f.doc.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode store salt: %w", err)
	}
	f.sealer, err = c.NewSealer(deviceKey, salt)
	if err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}
	return f, nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read store: %w", err)
		}
		salt, err := seal.NewSalt()
		if err != nil {
			return err
		}
		f.doc = fileDocument{
			Salt:  base64.StdEncoding.EncodeToString(salt),
			Items: make(map[string]string),
		}
		return f.save()
	}
	if err := json.Unmarshal(data, &f.doc); err != nil {
		return fmt.Errorf("parse store: %w", err)
	}
	if f.doc.Items == nil {
		f.doc.Items = make(map[string]string)
	}
	return nil
}

// save writes the document through a temp file and rename so a crash never
// leaves a half-written store behind. Callers hold f.mu or own f exclusively.
func (f *File) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.Marshal(&f.doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".store-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// Get returns the value stored under key and whether it exists.
func (f *File) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, Wrap("get", key, err)
	}
	f.mu.Lock()
	sealed, ok := f.doc.Items[key]
	f.mu.Unlock()
	if !ok {
		return "", false, nil
	}
	plain, err := f.sealer.Open(sealed)
	if err != nil {
		return "", false, Wrap("get", key, err)
	}
	return string(plain), true, nil
}

// Set stores value under key and flushes the document to disk.
func (f *File) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("set", key, err)
	}
	sealed, err := f.sealer.Seal([]byte(value))
	if err != nil {
		return Wrap("set", key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.doc.Items[key]
	f.doc.Items[key] = sealed
	f.doc.Version = time.Now().Unix()
	if err := f.save(); err != nil {
		if had {
			f.doc.Items[key] = prev
		} else {
			delete(f.doc.Items, key)
		}
		return Wrap("set", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (f *File) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("delete", key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.doc.Items[key]
	if !had {
		return nil
	}
	delete(f.doc.Items, key)
	f.doc.Version = time.Now().Unix()
	if err := f.save(); err != nil {
		f.doc.Items[key] = prev
		return Wrap("delete", key, err)
	}
	return nil
}

// LoadOrCreateDeviceKey reads the hex device key at path, generating and
// persisting a new random one on first use.
func LoadOrCreateDeviceKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("device key file %s is empty", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read device key: %w", err)
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate device key: %w", err)
	}
	key := hex.EncodeToString(raw)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device key: %w", err)
	}
	return key, nil
}
