package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roomchat-service/internal/observability"
)

// ErrEmptyFile rejects an upload with no file or a zero-byte file.
var ErrEmptyFile = errors.New("missing or empty file")

// Progress is one tick of a running upload. Ticks are monotonically
// non-decreasing in percent.
type Progress struct {
	BytesTransferred int64 `json:"bytes_transferred"`
	TotalBytes       int64 `json:"total_bytes"`
}

// Percent reports completion in [0,100].
func (p Progress) Percent() int {
	if p.TotalBytes <= 0 {
		return 0
	}
	pct := int(p.BytesTransferred * 100 / p.TotalBytes)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Result terminates a stream: a resolvable URL on success, an error otherwise.
type Result struct {
	URL string
	Err error
}

// Stream reports a single upload: zero or more progress ticks followed by
// exactly one terminal result.
type Stream struct {
	Progress <-chan Progress
	Result   <-chan Result
}

// Wait drains the stream until its terminal result. Callers that need to
// sequence an append after the upload use this; the append must never be
// issued before the URL is resolved.
func (s *Stream) Wait() (string, error) {
	for range s.Progress {
	}
	res := <-s.Result
	return res.URL, res.Err
}

// BlobStore writes an object durably and returns its resolvable URL.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, onChunk func(written int64)) (string, error)
}

// Pipeline turns locally selected files into durably stored objects,
// reporting progress and a terminal success or failure. Partial uploads are
// not resumed; a failed upload leaves no message behind.
type Pipeline struct {
	store  BlobStore
	logger *zap.SugaredLogger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(store BlobStore, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{store: store, logger: logger}
}

// UploadRoomFile stores a chat attachment under the room's key space. The
// random key segment makes concurrent uploads of the same filename collide-free.
func (p *Pipeline) UploadRoomFile(ctx context.Context, roomID int, filename string, r io.Reader, size int64) (*Stream, error) {
	if r == nil || size <= 0 {
		return nil, ErrEmptyFile
	}
	key := fmt.Sprintf("rooms/%d/%s-%s", roomID, uuid.NewString(), sanitizeName(filename))
	return p.run(ctx, key, r, size), nil
}

// UploadAvatar stores a profile image under the user's avatar key space.
func (p *Pipeline) UploadAvatar(ctx context.Context, userID int, filename string, r io.Reader, size int64) (*Stream, error) {
	if r == nil || size <= 0 {
		return nil, ErrEmptyFile
	}
	key := fmt.Sprintf("avatars/%d/%s-%s", userID, uuid.NewString(), sanitizeName(filename))
	return p.run(ctx, key, r, size), nil
}

func (p *Pipeline) run(ctx context.Context, key string, r io.Reader, size int64) *Stream {
	progress := make(chan Progress, 1)
	result := make(chan Result, 1)

	go func() {
		defer close(result)

		lastPct := -1
		emit := func(written int64) {
			tick := Progress{BytesTransferred: written, TotalBytes: size}
			pct := tick.Percent()
			if pct <= lastPct {
				return
			}
			lastPct = pct
			// drop the pending tick if the consumer lags; percent stays monotonic
			select {
			case progress <- tick:
			default:
				select {
				case <-progress:
				default:
				}
				progress <- tick
			}
		}

		url, err := p.store.Put(ctx, key, r, size, emit)
		if err != nil {
			close(progress)
			p.logger.Errorw("upload failed", "key", key, "error", err)
			observability.IncUploadFailure()
			result <- Result{Err: fmt.Errorf("upload %s: %w", key, err)}
			return
		}

		emit(size)
		close(progress)
		observability.AddUploadBytes(size)
		result <- Result{URL: url}
	}()

	return &Stream{Progress: progress, Result: result}
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "file"
	}
	return name
}
