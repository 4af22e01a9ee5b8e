package utils

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestColorPickerWrapsAround(t *testing.T) {
	picker := NewColorPicker()
	first := picker.NextColor()
	for i := 1; i < len(supportedColors); i++ {
		picker.NextColor()
	}
	// One full cycle later the first color comes back.
	require.Equal(t, first, picker.NextColor())
}

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func TestColorAndPrepend(t *testing.T) {
	reader, writer := io.Pipe()
	var out syncBuffer
	ColorAndPrepend(reader, &out, "peer1", supportedColors[0])

	_, err := writer.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "[peer1]") == 2
	}, time.Second, 10*time.Millisecond)
	// Line content passes through unmodified.
	require.Contains(t, out.String(), "hello")
	require.Contains(t, out.String(), "world")
}
