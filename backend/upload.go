package backend

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/mwantia/unifs/data"
	"github.com/mwantia/unifs/log"
)

// PersistFunc drains r into the store. It runs on its own goroutine and
// must consume r until EOF or fail.
type PersistFunc func(ctx context.Context, r io.Reader) error

// UploadSession couples the caller-facing writer with the background task
// persisting the bytes. Persist failures surface on Write, Close and Err.
type UploadSession struct {
	id  string
	key string

	writer *io.PipeWriter
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

// StartUpload wires persist to a new session before returning it. The task
// runs on a context that keeps ctx's values but ignores its cancellation.
func StartUpload(ctx context.Context, key string, logger *log.Logger, persist PersistFunc) *UploadSession {
	reader, writer := io.Pipe()

	session := &UploadSession{
		id:     newSessionID(),
		key:    key,
		writer: writer,
		done:   make(chan struct{}),
	}

	persistCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(session.done)

		err := persist(persistCtx, reader)
		if err != nil {
			err = data.PersistFailed(key, err)
			logger.Error("Upload %s for '%s' failed: %v", session.id, key, err)
			reader.CloseWithError(err)
		} else {
			logger.Debug("Upload %s for '%s' persisted", session.id, key)
			reader.Close()
		}

		session.err = err
	}()

	return session
}

func newSessionID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}

	return uuid.NewString()
}

func (us *UploadSession) ID() string {
	return us.id
}

func (us *UploadSession) Key() string {
	return us.key
}

// Write blocks until the persist task consumed p or failed.
func (us *UploadSession) Write(p []byte) (int, error) {
	select {
	case <-us.done:
		if us.err != nil {
			return 0, us.err
		}
		return 0, data.NewPathError("write", us.key, data.ErrClosed)
	default:
	}

	n, err := us.writer.Write(p)
	if err == io.ErrClosedPipe {
		err = data.NewPathError("write", us.key, data.ErrClosed)
	}

	return n, err
}

// ReadFrom copies r into the session.
func (us *UploadSession) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(struct{ io.Writer }{us}, r)
}

// Close signals end of input and waits for the persist task.
func (us *UploadSession) Close() error {
	us.closeOnce.Do(func() {
		us.writer.Close()
	})

	<-us.done
	return us.err
}

// CloseWithError aborts the upload. The persist task sees cause as a read
// error and the object is left as the backend leaves aborted uploads.
func (us *UploadSession) CloseWithError(cause error) error {
	us.closeOnce.Do(func() {
		us.writer.CloseWithError(cause)
	})

	<-us.done
	return us.err
}

// Done is closed once the persist task finished.
func (us *UploadSession) Done() <-chan struct{} {
	return us.done
}

// Err returns the persist result, or nil while the task still runs.
func (us *UploadSession) Err() error {
	select {
	case <-us.done:
		return us.err
	default:
		return nil
	}
}
