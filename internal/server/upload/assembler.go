package upload

import "io"

// assembly streams the chunks of a session in index order as one
// contiguous reader. Chunks are opened lazily one at a time, so assembly
// memory does not grow with file size, and the consumer hashes the final
// byte stream exactly as it would a whole-file upload.
type assembly struct {
	chunks    *ChunkStore
	sessionID string
	count     int

	next int
	cur  io.ReadCloser
}

// newAssembly returns a reader over chunks [0, count) of the session.
func newAssembly(chunks *ChunkStore, sessionID string, count int) *assembly {
	return &assembly{chunks: chunks, sessionID: sessionID, count: count}
}

func (a *assembly) Read(p []byte) (int, error) {
	for {
		if a.cur == nil {
			if a.next >= a.count {
				return 0, io.EOF
			}
			rc, err := a.chunks.Open(a.sessionID, a.next)
			if err != nil {
				return 0, err
			}
			a.cur = rc
			a.next++
		}

		n, err := a.cur.Read(p)
		if err == io.EOF {
			if cerr := a.cur.Close(); cerr != nil {
				return n, cerr
			}
			a.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (a *assembly) Close() error {
	if a.cur == nil {
		return nil
	}
	err := a.cur.Close()
	a.cur = nil
	return err
}
