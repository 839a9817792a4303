package stream

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/blob"
	"github.com/dropvault/dropvault/internal/server/content"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/repositories/inmemory"
)

func newStreamer(t *testing.T) (*Service, *content.Service) {
	t.Helper()

	db, err := sql.Open("sqlite", "file:stream_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := blob.NewLocalFS(t.TempDir())
	require.NoError(t, err)

	repos := inmemory.NewManager()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cs := content.NewService(db, repos, store, t.TempDir(), logger)
	return NewService(db, repos, store), cs
}

func putFile(t *testing.T, cs *content.Service, owner, name string, data []byte) *models.FileRecord {
	t.Helper()
	rec, _, err := cs.Put(context.Background(), owner, name, nil, bytes.NewReader(data))
	require.NoError(t, err)
	return rec
}

func readAll(t *testing.T, res *Result) []byte {
	t.Helper()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return data
}

func TestStream_FullContent(t *testing.T) {
	svc, cs := newStreamer(t)
	data := bytes.Repeat([]byte("q"), 1000)
	rec := putFile(t, cs, "u1", "big.bin", data)

	res, err := svc.Stream(context.Background(), "u1", rec.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, int64(1000), res.Size)
	assert.Equal(t, int64(1000), res.Length())
	assert.Equal(t, "big.bin", res.Name)
	assert.Equal(t, data, readAll(t, res))
}

func TestStream_BoundedRange(t *testing.T) {
	svc, cs := newStreamer(t)
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	rec := putFile(t, cs, "u1", "big.bin", data)

	res, err := svc.Stream(context.Background(), "u1", rec.ID, &ByteRange{Start: 0, End: 99})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, int64(100), res.Length())
	assert.Equal(t, "bytes 0-99/1000", res.ContentRange())
	assert.Equal(t, data[:100], readAll(t, res))
}

func TestStream_OpenEndedRangeClampsToSize(t *testing.T) {
	svc, cs := newStreamer(t)
	data := []byte("0123456789")
	rec := putFile(t, cs, "u1", "digits.txt", data)

	res, err := svc.Stream(context.Background(), "u1", rec.ID, &ByteRange{Start: 4, End: -1})
	require.NoError(t, err)

	assert.Equal(t, "bytes 4-9/10", res.ContentRange())
	assert.Equal(t, []byte("456789"), readAll(t, res))

	// an explicit end past the content is clamped the same way
	res, err = svc.Stream(context.Background(), "u1", rec.ID, &ByteRange{Start: 4, End: 5000})
	require.NoError(t, err)
	assert.Equal(t, "bytes 4-9/10", res.ContentRange())
	readAll(t, res)
}

func TestStream_UnsatisfiableRanges(t *testing.T) {
	svc, cs := newStreamer(t)
	rec := putFile(t, cs, "u1", "digits.txt", []byte("0123456789"))

	for _, rng := range []ByteRange{
		{Start: 10, End: 20},
		{Start: 100, End: -1},
		{Start: 7, End: 3},
		{Start: -1, End: 5},
	} {
		_, err := svc.Stream(context.Background(), "u1", rec.ID, &rng)
		assert.True(t, errors.Is(err, common.ErrRangeNotSatisfiable), "range %+v", rng)
	}
}

func TestStream_ZeroByteFile(t *testing.T) {
	svc, cs := newStreamer(t)
	rec := putFile(t, cs, "u1", "empty.txt", nil)

	res, err := svc.Stream(context.Background(), "u1", rec.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, int64(0), res.Size)
	assert.Empty(t, readAll(t, res))

	// no byte of a zero-byte file is addressable
	_, err = svc.Stream(context.Background(), "u1", rec.ID, &ByteRange{Start: 0, End: -1})
	assert.True(t, errors.Is(err, common.ErrRangeNotSatisfiable))
}

func TestStream_FolderRejected(t *testing.T) {
	svc, cs := newStreamer(t)
	folder, err := cs.CreateFolder(context.Background(), "u1", "docs", nil)
	require.NoError(t, err)

	_, err = svc.Stream(context.Background(), "u1", folder.ID, nil)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestStream_WrongOwnerIsNotFound(t *testing.T) {
	svc, cs := newStreamer(t)
	rec := putFile(t, cs, "u1", "secret.txt", []byte("mine"))

	_, err := svc.Stream(context.Background(), "intruder", rec.ID, nil)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
