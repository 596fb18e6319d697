package protocol_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
	"github.com/duomem/duomem-go/pkg/extraction"
	"github.com/duomem/duomem-go/pkg/protocol"
)

// cannedExtractor returns a fixed extraction result.
type cannedExtractor struct {
	result *extraction.Result
}

func (c *cannedExtractor) Extract(ctx context.Context, text string) (*extraction.Result, error) {
	if c.result != nil {
		return c.result, nil
	}
	return &extraction.Result{}, nil
}

// wireResponse is the decoded shape of one outbound line.
type wireResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// serverHarness drives a protocol server over in-process pipes,
// synchronously: one request in, one response out.
type serverHarness struct {
	t    *testing.T
	in   *io.PipeWriter
	out  *bufio.Scanner
	done chan error
}

func newServerHarness(t *testing.T, opts ...core.Option) *serverHarness {
	dir := t.TempDir()
	cfg := &core.Config{
		LLM:      core.LLMConfig{Provider: "none"},
		Embedder: core.EmbedderConfig{Provider: "simple", Dimensions: 256},
		SimilarityStore: core.SimilarityStoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": filepath.Join(dir, "facts.db")},
		},
		RelationStore: core.RelationStoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": filepath.Join(dir, "graph.db")},
		},
	}

	opts = append(opts, core.WithLogger(zap.NewNop()))
	engine, err := core.New(cfg, opts...)
	require.NoError(t, err)

	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()

	framer := protocol.NewFramer(inReader, outWriter)
	server := protocol.NewServer(engine, framer, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- server.Run(context.Background())
	}()

	scanner := bufio.NewScanner(outReader)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	h := &serverHarness{t: t, in: inWriter, out: scanner, done: done}
	t.Cleanup(func() {
		_ = inWriter.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
		_ = engine.Close()
	})
	return h
}

func (h *serverHarness) send(line string) {
	_, err := fmt.Fprintln(h.in, line)
	require.NoError(h.t, err)
}

func (h *serverHarness) recv() *wireResponse {
	require.True(h.t, h.out.Scan(), "expected a response line")
	var resp wireResponse
	require.NoError(h.t, json.Unmarshal(h.out.Bytes(), &resp))
	return &resp
}

func (h *serverHarness) roundTrip(line string) *wireResponse {
	h.send(line)
	return h.recv()
}

func TestServer_PingEchoesID(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{"method":"ping","id":"req-abc"}`)
	assert.Equal(t, json.RawMessage(`"req-abc"`), resp.ID)
	assert.Nil(t, resp.Error)
}

func TestServer_IngestThenSearch(t *testing.T) {
	h := newServerHarness(t, core.WithExtractor(&cannedExtractor{result: &extraction.Result{
		Entities: []extraction.EntityDraft{
			{Name: "Sarah Johnson", Type: "person"},
			{Name: "Alex", Type: "person"},
		},
		Relations: []extraction.RelationDraft{
			{Source: "Sarah Johnson", Label: "works_with", Target: "Alex", Confidence: 0.9},
		},
	}}))

	resp := h.roundTrip(`{"method":"memory.ingest","id":1,"params":{"text":"Sarah Johnson is the CTO and works with Alex on architecture","owner_id":"alex"}}`)
	require.Nil(t, resp.Error)

	var ingest struct {
		Fact struct {
			ID int64 `json:"id"`
		} `json:"fact"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &ingest))
	assert.NotZero(t, ingest.Fact.ID)

	resp = h.roundTrip(`{"method":"memory.search","id":2,"params":{"query":"who works with Alex?","owner_id":"alex","limit":5}}`)
	require.Nil(t, resp.Error)

	var search struct {
		Results []struct {
			Fact struct {
				ID      int64  `json:"id"`
				Content string `json:"content"`
			} `json:"fact"`
			Neighbors []struct {
				Entity struct {
					Name string `json:"name"`
				} `json:"entity"`
			} `json:"neighbors"`
		} `json:"results"`
		GraphUnavailable bool `json:"graph_unavailable"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &search))
	require.Len(t, search.Results, 1)
	assert.Equal(t, ingest.Fact.ID, search.Results[0].Fact.ID)
	assert.False(t, search.GraphUnavailable)

	names := make(map[string]bool)
	for _, n := range search.Results[0].Neighbors {
		names[n.Entity.Name] = true
	}
	assert.True(t, names["sarah_johnson"])
}

func TestServer_MalformedLineContinues(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{this is not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(core.KindDecodeError), resp.Error.Kind)
	assert.Equal(t, json.RawMessage("null"), resp.ID)

	// The loop keeps serving after a bad line.
	resp = h.roundTrip(`{"method":"ping","id":2}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("2"), resp.ID)
}

func TestServer_MissingMethodKeepsID(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{"id":7,"params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(core.KindDecodeError), resp.Error.Kind)
	assert.Equal(t, json.RawMessage("7"), resp.ID)
}

func TestServer_UnknownMethod(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{"method":"memory.explode","id":1,"params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(core.KindValidationError), resp.Error.Kind)
}

func TestServer_GetNotFound(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{"method":"memory.get","id":1,"params":{"id":424242,"owner_id":"u1"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(core.KindNotFound), resp.Error.Kind)
}

func TestServer_SanitizesInboundText(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{"method":"memory.ingest","id":1,"params":{"text":"tab\tokstrip","owner_id":"u1"}}`)
	require.Nil(t, resp.Error)

	var ingest struct {
		Fact struct {
			ID      int64  `json:"id"`
			Content string `json:"content"`
		} `json:"fact"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &ingest))
	assert.Equal(t, "tab\tokstrip", ingest.Fact.Content)
}

func TestServer_EmptyLinesIgnored(t *testing.T) {
	h := newServerHarness(t)

	h.send("")
	h.send("   ")
	resp := h.roundTrip(`{"method":"ping","id":1}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("1"), resp.ID)
}

func TestServer_ConcurrentRequestsOneResponseEach(t *testing.T) {
	h := newServerHarness(t)

	const n = 25
	for i := 0; i < n; i++ {
		h.send(fmt.Sprintf(`{"method":"ping","id":%d}`, i))
	}

	seen := make(map[string]int)
	for i := 0; i < n; i++ {
		resp := h.recv()
		require.Nil(t, resp.Error)
		seen[string(resp.ID)]++
	}

	require.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "id %s answered more than once", id)
	}
}

func TestServer_CleanShutdownOnEOF(t *testing.T) {
	h := newServerHarness(t)

	resp := h.roundTrip(`{"method":"ping","id":1}`)
	require.Nil(t, resp.Error)

	require.NoError(t, h.in.Close())
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		// Put it back so the harness cleanup sees the shutdown too.
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop on EOF")
	}
}

func TestServer_OversizedLineDropsAndContinues(t *testing.T) {
	h := newServerHarness(t)

	h.send(strings.Repeat("a", 10*1024*1024+16))
	resp := h.recv()
	assert.Equal(t, "null", string(resp.ID))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "decode_error", resp.Error.Kind)

	// The loop keeps serving after dropping the oversized line.
	resp = h.roundTrip(`{"method":"ping","id":9}`)
	assert.Equal(t, "9", string(resp.ID))
	assert.Nil(t, resp.Error)
}
