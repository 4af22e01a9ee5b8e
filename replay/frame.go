package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// The transaction batch file is a sequence of frames, each a 4-byte
// little-endian length followed by that many bytes of opaque
// transaction data. The same framing is used on the wire towards the
// workers.

// maxFrameSize bounds a single transaction blob; anything larger is a
// corrupt batch file, not a real transaction.
const maxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ReadFrame reads the next transaction blob. Returns io.EOF cleanly at
// the end of the batch.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("couldn't read frame length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("couldn't read frame body: %w", err)
	}
	return frame, nil
}

// WriteFrame writes one transaction blob.
func WriteFrame(w io.Writer, frame []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}
