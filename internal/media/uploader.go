// Package media abstracts object storage for generated artifacts. The
// gateway only needs "store these bytes, give me a public URL"; which bucket
// technology sits behind that is a deployment concern.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoUploader indicates media storage is not configured. Callers treat
// this as a skip condition, not a failure.
var ErrNoUploader = errors.New("media: no uploader configured")

// Uploader stores an object and returns its publicly reachable URL.
// Implementations must be safe for concurrent use.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (url string, err error)
}

// Nop is an Uploader for deployments without media storage. Every upload
// returns [ErrNoUploader].
type Nop struct{}

var _ Uploader = Nop{}

// Upload implements Uploader.
func (Nop) Upload(context.Context, string, string, []byte) (string, error) {
	return "", ErrNoUploader
}

// Memory is an in-process Uploader used in tests and local development. URLs
// are synthesised as mem://<bucket>/<name>.
type Memory struct {
	Bucket string

	mu      sync.Mutex
	objects map[string][]byte
}

var _ Uploader = (*Memory)(nil)

// Upload implements Uploader.
func (m *Memory) Upload(_ context.Context, name, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[name] = append([]byte(nil), data...)
	return fmt.Sprintf("mem://%s/%s", m.Bucket, name), nil
}

// Object returns a stored object's bytes.
func (m *Memory) Object(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	return data, ok
}
