package protocol_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duomem/duomem-go/pkg/core"
	"github.com/duomem/duomem-go/pkg/protocol"
)

func TestFramer_ReadLine(t *testing.T) {
	in := strings.NewReader("first\nsecond\n")
	framer := protocol.NewFramer(in, &bytes.Buffer{})

	line, err := framer.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "first", string(line))

	line, err = framer.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "second", string(line))

	_, err = framer.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestFramer_ReadLineReturnsStableCopy(t *testing.T) {
	in := strings.NewReader("aaaa\nbbbb\n")
	framer := protocol.NewFramer(in, &bytes.Buffer{})

	first, err := framer.ReadLine()
	require.NoError(t, err)

	_, err = framer.ReadLine()
	require.NoError(t, err)

	// The first line must not be clobbered by the next read.
	assert.Equal(t, "aaaa", string(first))
}

func TestFramer_WriteMessageSingleLine(t *testing.T) {
	var out bytes.Buffer
	framer := protocol.NewFramer(strings.NewReader(""), &out)

	require.NoError(t, framer.WriteMessage(map[string]string{"key": "value"}))

	written := out.String()
	assert.True(t, strings.HasSuffix(written, "\n"))
	assert.Equal(t, 1, strings.Count(written, "\n"))
}

func TestFramer_ConcurrentWritesNeverInterleave(t *testing.T) {
	var out bytes.Buffer
	framer := protocol.NewFramer(strings.NewReader(""), &out)

	const writers = 20
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg := map[string]interface{}{
					"writer":  w,
					"seq":     i,
					"padding": strings.Repeat("x", 200),
				}
				assert.NoError(t, framer.WriteMessage(msg))
			}
		}(w)
	}
	wg.Wait()

	// Every line on the channel must be complete, parseable JSON.
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	count := 0
	for scanner.Scan() {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded), "interleaved line: %s", scanner.Text())
		count++
	}
	assert.Equal(t, writers*perWriter, count)
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("pipe closed")
}

func TestFramer_WriteFailureIsChannelBroken(t *testing.T) {
	framer := protocol.NewFramer(strings.NewReader(""), brokenWriter{})

	err := framer.WriteMessage(map[string]string{"key": "value"})
	assert.True(t, errors.Is(err, core.ErrChannelBroken))
}

type brokenReader struct{}

func (brokenReader) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("connection reset")
}

func TestFramer_ReadFailureIsChannelBroken(t *testing.T) {
	framer := protocol.NewFramer(brokenReader{}, &bytes.Buffer{})

	_, err := framer.ReadLine()
	assert.True(t, errors.Is(err, core.ErrChannelBroken))
}

func TestFramer_OversizedLineRecoverable(t *testing.T) {
	big := strings.Repeat("x", 10*1024*1024+16)
	in := strings.NewReader(big + "\n" + `{"ok":true}` + "\n")
	framer := protocol.NewFramer(in, &bytes.Buffer{})

	_, err := framer.ReadLine()
	require.ErrorIs(t, err, protocol.ErrLineTooLong)
	assert.True(t, errors.Is(err, protocol.ErrDecode))
	assert.False(t, errors.Is(err, core.ErrChannelBroken))

	// The channel survives: the next line is readable.
	line, err := framer.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(line))

	_, err = framer.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestFramer_ReadLineWithoutTrailingNewline(t *testing.T) {
	in := strings.NewReader(`{"method":"ping"}`)
	framer := protocol.NewFramer(in, &bytes.Buffer{})

	line, err := framer.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"method":"ping"}`, string(line))

	_, err = framer.ReadLine()
	assert.Equal(t, io.EOF, err)
}
