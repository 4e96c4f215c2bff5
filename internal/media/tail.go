package media

import (
	"strings"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// stderrTailSize is how much ffmpeg stderr is kept for error messages
const stderrTailSize = 4096

// stderrTail is an io.Writer that keeps only the last bytes written
type stderrTail struct {
	mu sync.Mutex
	rb *ringbuffer.RingBuffer
}

func newStderrTail(size int) *stderrTail {
	return &stderrTail{rb: ringbuffer.New(size)}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if c := t.rb.Capacity(); len(p) > c {
		p = p[len(p)-c:]
	}
	if over := len(p) - t.rb.Free(); over > 0 {
		discard := make([]byte, over)
		_, _ = t.rb.Read(discard)
	}
	_, _ = t.rb.Write(p)
	return n, nil
}

// String returns the retained output, trimmed
func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.rb.Length()
	if n == 0 {
		return ""
	}
	buf := make([]byte, n)
	_, _ = t.rb.Read(buf)
	_, _ = t.rb.Write(buf)
	return strings.TrimSpace(string(buf))
}
