package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/duomem/duomem-go/pkg/core"
)

// maxLineSize caps a single inbound line at 10 MiB.
const maxLineSize = 10 << 20

// ErrLineTooLong marks an inbound line over maxLineSize. The oversized line
// is discarded in full and the channel stays usable, so the read loop
// reports it and continues.
var ErrLineTooLong = fmt.Errorf("%w: line exceeds %d bytes", ErrDecode, maxLineSize)

// Framer owns the primary protocol channel.
//
// Every outbound message is marshaled to a single line and written in one
// atomic operation under a channel-local lock, so concurrent handlers can
// never interleave partial messages. Inbound lines are read one at a time;
// a malformed line is the caller's problem to report, the framer just
// delivers bytes.
type Framer struct {
	mu     sync.Mutex
	out    io.Writer
	reader *bufio.Reader
}

// NewFramer creates a framer over the given channel pair.
func NewFramer(in io.Reader, out io.Writer) *Framer {
	return &Framer{
		out:    out,
		reader: bufio.NewReaderSize(in, 64*1024),
	}
}

// ReadLine blocks for the next inbound line.
//
// Returns io.EOF when the input channel is exhausted, ErrLineTooLong for an
// oversized line (which is consumed and dropped), or an error wrapping
// core.ErrChannelBroken when the channel itself failed.
func (f *Framer) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := f.reader.ReadSlice('\n')
		line = append(line, chunk...)

		if len(line) > maxLineSize {
			if err == bufio.ErrBufferFull {
				if derr := f.discardLine(); derr != nil {
					return nil, derr
				}
			}
			return nil, ErrLineTooLong
		}

		switch err {
		case nil:
			return trimNewline(line), nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(line) == 0 {
				return nil, io.EOF
			}
			return trimNewline(line), nil
		default:
			return nil, fmt.Errorf("%w: %v", core.ErrChannelBroken, err)
		}
	}
}

// discardLine consumes input up to and including the next newline.
func (f *Framer) discardLine() error {
	for {
		_, err := f.reader.ReadSlice('\n')
		switch err {
		case nil, io.EOF:
			return nil
		case bufio.ErrBufferFull:
			continue
		default:
			return fmt.Errorf("%w: %v", core.ErrChannelBroken, err)
		}
	}
}

func trimNewline(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// WriteMessage marshals v and writes it as one line in a single atomic
// write.
//
// A write failure means the primary channel is broken; the returned error
// wraps core.ErrChannelBroken and the process should shut down.
func (f *Framer) WriteMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.out.Write(line); err != nil {
		return fmt.Errorf("%w: %v", core.ErrChannelBroken, err)
	}

	return nil
}
