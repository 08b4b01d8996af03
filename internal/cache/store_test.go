// SPDX-License-Identifier: MIT

package cache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cache")
	return New(filepath.Join(dir, "bundle.js"), filepath.Join(dir, "etag.txt")), dir
}

func TestStore_ReadEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	e, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, Entry{}, e)
}

func TestStore_ReplaceThenRead(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Replace([]byte("console.log(1)"), `W/"abc"`))
	e, err := s.Read()
	require.NoError(t, err)

	want := Entry{Bundle: []byte("console.log(1)"), Token: `W/"abc"`, HasBundle: true, HasToken: true}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ReplaceWithoutTokenDeletesStaleToken(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Replace([]byte("v1"), "etag-1"))
	require.NoError(t, s.Replace([]byte("v2"), ""))

	e, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), e.Bundle)
	assert.False(t, e.HasToken)
	assert.NoFileExists(t, s.TokenPath())
}

func TestStore_TokenWithoutBundleIsAbsent(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(s.TokenPath(), []byte("orphan"), 0o600))

	e, err := s.Read()
	require.NoError(t, err)
	assert.False(t, e.HasBundle)
	assert.False(t, e.HasToken)
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Replace([]byte("v1"), "etag-1"))

	require.NoError(t, s.Clear())
	e, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, Entry{}, e)
	assert.NoFileExists(t, s.BundlePath())
	assert.NoFileExists(t, s.TokenPath())

	// Clearing an empty cache is fine.
	require.NoError(t, s.Clear())
}

type failingReader struct {
	data []byte
	n    int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n >= len(r.data)/2 {
		return 0, errors.New("connection reset")
	}
	c := copy(p, r.data[r.n:len(r.data)/2])
	r.n += c
	return c, nil
}

func TestStore_InterruptedReplaceKeepsPreviousBundle(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, s.Replace([]byte("old complete bundle"), "etag-old"))

	_, err := s.ReplaceFrom(&failingReader{data: []byte(strings.Repeat("N", 4096))}, "etag-new")
	require.Error(t, err)
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "write", we.Op)

	e, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("old complete bundle"), e.Bundle)
	assert.Equal(t, "etag-old", e.Token)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, de := range entries {
		names = append(names, de.Name())
	}
	assert.ElementsMatch(t, []string{"bundle.js", "etag.txt"}, names, "pending file must be cleaned up")
}

func TestStore_CrashBeforeCommitLeavesOldBundle(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Replace([]byte("old"), "etag-old"))

	// A process dying mid-write leaves an uncommitted pending file behind.
	pf, err := renameio.NewPendingFile(s.BundlePath())
	require.NoError(t, err)
	_, err = io.WriteString(pf, "partial new bund")
	require.NoError(t, err)
	require.NoError(t, pf.File.Close())

	restarted := New(s.BundlePath(), s.TokenPath())
	e, err := restarted.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), e.Bundle)
	assert.Equal(t, "etag-old", e.Token)
}

func TestStore_Info(t *testing.T) {
	s, _ := newTestStore(t)

	info, err := s.Info()
	require.NoError(t, err)
	assert.False(t, info.HasBundle)

	require.NoError(t, s.Replace([]byte("12345"), "t"))
	info, err = s.Info()
	require.NoError(t, err)
	assert.True(t, info.HasBundle)
	assert.EqualValues(t, 5, info.Size)
	assert.Equal(t, "t", info.Token)
}
