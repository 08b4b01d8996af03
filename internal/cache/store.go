// SPDX-License-Identifier: MIT

// Package cache owns the on-disk bundle and its validation token.
//
// The bundle is always replaced through a temporary file that is fsynced and
// renamed over the old one, so readers observe either the previous or the new
// complete bundle. The token lives in a separate plain text file and is
// written after the bundle; a crash in between leaves a bundle whose token is
// stale or missing, which only costs one unconditional fetch.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/bundled/internal/log"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// Entry is a snapshot of the cache. HasToken implies HasBundle.
type Entry struct {
	Bundle    []byte
	Token     string
	HasBundle bool
	HasToken  bool
}

// Info describes the cached bundle without loading it.
type Info struct {
	HasBundle bool      `json:"has_bundle"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time,omitempty"`
	Token     string    `json:"etag,omitempty"`
}

// Store is the file-backed bundle cache. All mutations are serialized.
type Store struct {
	mu         sync.RWMutex
	bundlePath string
	tokenPath  string
	logger     zerolog.Logger
}

// New returns a store for the given bundle and token file paths.
func New(bundlePath, tokenPath string) *Store {
	return &Store{
		bundlePath: bundlePath,
		tokenPath:  tokenPath,
		logger:     xglog.WithComponent("cache"),
	}
}

// BundlePath returns the location of the cached bundle.
func (s *Store) BundlePath() string { return s.bundlePath }

// TokenPath returns the location of the validation token file.
func (s *Store) TokenPath() string { return s.tokenPath }

// Read returns the current bundle and token.
func (s *Store) Read() (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e Entry
	// #nosec G304 -- path is derived from the daemon data directory
	data, err := os.ReadFile(s.bundlePath)
	switch {
	case err == nil:
		e.Bundle = data
		e.HasBundle = true
	case errors.Is(err, fs.ErrNotExist):
		return Entry{}, nil
	default:
		return Entry{}, fmt.Errorf("read bundle: %w", err)
	}

	token, ok, err := s.readToken()
	if err != nil {
		return Entry{}, err
	}
	e.Token, e.HasToken = token, ok
	return e, nil
}

// Info stats the cached bundle and reads its token.
func (s *Store) Info() (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := os.Stat(s.bundlePath)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("stat bundle: %w", err)
	}
	token, _, err := s.readToken()
	if err != nil {
		return Info{}, err
	}
	return Info{HasBundle: true, Size: st.Size(), ModTime: st.ModTime(), Token: token}, nil
}

func (s *Store) readToken() (string, bool, error) {
	// #nosec G304 -- path is derived from the daemon data directory
	data, err := os.ReadFile(s.tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read token: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// Replace atomically swaps in bundle and then records token. An empty token
// removes the token file so no stale validator survives.
func (s *Store) Replace(bundle []byte, token string) error {
	_, err := s.ReplaceFrom(bytes.NewReader(bundle), token)
	return err
}

// ReplaceFrom streams r into a pending file and commits it over the bundle only
// after r is fully consumed. A read error leaves the previous bundle in place.
func (s *Store) ReplaceFrom(r io.Reader, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.bundlePath), dirPerm); err != nil {
		return 0, &WriteError{Op: "mkdir", Path: filepath.Dir(s.bundlePath), Err: err}
	}

	pendingFile, err := renameio.NewPendingFile(s.bundlePath, renameio.WithPermissions(filePerm))
	if err != nil {
		return 0, &WriteError{Op: "create", Path: s.bundlePath, Err: err}
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending bundle file")
		}
	}()

	n, err := io.Copy(pendingFile, r)
	if err != nil {
		return n, &WriteError{Op: "write", Path: s.bundlePath, Err: err}
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return n, &WriteError{Op: "rename", Path: s.bundlePath, Err: err}
	}

	if err := s.writeToken(token); err != nil {
		return n, err
	}

	s.logger.Debug().
		Str(xglog.FieldEvent, "cache.replaced").
		Int64(xglog.FieldBytes, n).
		Bool("has_etag", token != "").
		Msg("bundle replaced")
	return n, nil
}

func (s *Store) writeToken(token string) error {
	if token == "" {
		if err := os.Remove(s.tokenPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &WriteError{Op: "remove", Path: s.tokenPath, Err: err}
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), dirPerm); err != nil {
		return &WriteError{Op: "mkdir", Path: filepath.Dir(s.tokenPath), Err: err}
	}
	if err := renameio.WriteFile(s.tokenPath, []byte(token), filePerm); err != nil {
		return &WriteError{Op: "write", Path: s.tokenPath, Err: err}
	}
	return nil
}

// Clear removes bundle and token. Missing files are not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range []string{s.bundlePath, s.tokenPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, &WriteError{Op: "remove", Path: p, Err: err})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info().
		Str(xglog.FieldEvent, "cache.cleared").
		Str(xglog.FieldPath, s.bundlePath).
		Msg("bundle cache cleared")
	return nil
}
