package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore records the keys it was given and feeds onChunk in fixed steps.
type fakeStore struct {
	keys      []string
	chunk     int64
	failAfter int64 // fail once written exceeds this; 0 means never
}

func (s *fakeStore) Put(ctx context.Context, key string, r io.Reader, size int64, onChunk func(written int64)) (string, error) {
	s.keys = append(s.keys, key)
	chunk := s.chunk
	if chunk <= 0 {
		chunk = 1
	}
	var written int64
	for written < size {
		written += chunk
		if written > size {
			written = size
		}
		if s.failAfter > 0 && written > s.failAfter {
			return "", errors.New("disk full")
		}
		onChunk(written)
	}
	return "https://files.test/" + key, nil
}

func collect(t *testing.T, stream *Stream) ([]int, Result) {
	t.Helper()
	var percents []int
	for tick := range stream.Progress {
		percents = append(percents, tick.Percent())
	}
	return percents, <-stream.Result
}

func TestUploadReportsMonotonicProgressAndTerminalURL(t *testing.T) {
	store := &fakeStore{chunk: 25}
	p := NewPipeline(store, zap.NewNop().Sugar())

	stream, err := p.UploadRoomFile(context.Background(), 7, "photo.png", strings.NewReader(strings.Repeat("x", 100)), 100)
	require.NoError(t, err)

	percents, res := collect(t, stream)
	require.NoError(t, res.Err)
	assert.True(t, strings.HasPrefix(res.URL, "https://files.test/rooms/7/"), "url %q", res.URL)
	assert.True(t, strings.HasSuffix(res.URL, "-photo.png"), "url %q", res.URL)

	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.Greater(t, percents[i], percents[i-1], "progress went backwards at tick %d", i)
	}
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestUploadFailureYieldsErrorAndNoURL(t *testing.T) {
	store := &fakeStore{chunk: 10, failAfter: 30}
	p := NewPipeline(store, zap.NewNop().Sugar())

	stream, err := p.UploadRoomFile(context.Background(), 7, "big.bin", strings.NewReader(strings.Repeat("x", 100)), 100)
	require.NoError(t, err)

	_, res := collect(t, stream)
	require.Error(t, res.Err)
	assert.Empty(t, res.URL)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	p := NewPipeline(&fakeStore{}, zap.NewNop().Sugar())

	_, err := p.UploadRoomFile(context.Background(), 7, "a.txt", nil, 0)
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = p.UploadAvatar(context.Background(), 1, "a.png", strings.NewReader(""), 0)
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestUploadKeysNeverCollide(t *testing.T) {
	store := &fakeStore{chunk: 100}
	p := NewPipeline(store, zap.NewNop().Sugar())

	for i := 0; i < 2; i++ {
		stream, err := p.UploadRoomFile(context.Background(), 3, "same-name.jpg", strings.NewReader("data"), 4)
		require.NoError(t, err)
		_, err = stream.Wait()
		require.NoError(t, err)
	}

	require.Len(t, store.keys, 2)
	assert.NotEqual(t, store.keys[0], store.keys[1])
	for _, key := range store.keys {
		assert.True(t, strings.HasPrefix(key, "rooms/3/"), "key %q", key)
		assert.True(t, strings.HasSuffix(key, "-same-name.jpg"), "key %q", key)
	}
}

func TestAvatarKeysAreScopedToUser(t *testing.T) {
	store := &fakeStore{chunk: 100}
	p := NewPipeline(store, zap.NewNop().Sugar())

	stream, err := p.UploadAvatar(context.Background(), 42, "face.png", strings.NewReader("img"), 3)
	require.NoError(t, err)
	url, err := stream.Wait()
	require.NoError(t, err)
	assert.Contains(t, url, "avatars/42/")
}

func TestSanitizeNameStripsPathsAndOddRunes(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitizeName("../../etc/report.pdf"))
	assert.Equal(t, "notes.txt", sanitizeName(`C:\Users\me\notes.txt`))
	assert.Equal(t, "r_sum_.doc", sanitizeName("r\u00e9sum\u00e9.doc"))
	assert.Equal(t, "file", sanitizeName(""))
}

func TestDiskStoreWritesObjectAndBuildsURL(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskStore(dir, "http://localhost:8080/files/")

	payload := bytes.Repeat([]byte("ab"), chunkSize) // forces multiple chunks
	var ticks []int64
	url, err := store.Put(context.Background(), "rooms/1/key-f.bin", bytes.NewReader(payload), int64(len(payload)), func(written int64) {
		ticks = append(ticks, written)
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/rooms/1/key-f.bin", url)

	stored, err := os.ReadFile(filepath.Join(dir, "rooms", "1", "key-f.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	require.GreaterOrEqual(t, len(ticks), 2)
	assert.Equal(t, int64(len(payload)), ticks[len(ticks)-1])
}

func TestDiskStoreRemovesPartialObjectOnCancel(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskStore(dir, "http://localhost:8080/files")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "rooms/1/gone.bin", bytes.NewReader([]byte("data")), 4, nil)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "rooms", "1", "gone.bin"))
	assert.True(t, os.IsNotExist(statErr))
}
