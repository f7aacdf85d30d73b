// Package embed requests a dense vector embedding for a chunk from an
// external embedder process. It is the Go port of
// original_source/generate_embedding.rs: the chunk is base64-encoded and
// passed as a command-line argument, and the process's stdout is parsed as a
// JSON []float32. Embedding is opt-in per build — when disabled, nothing in
// this package is invoked and no chunk carries a vector.
package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/kenchrcum/moonball/internal/archiveerr"
)

// DefaultTimeout bounds a single embedder invocation, matching spec.md.
const DefaultTimeout = 30 * time.Second

// Client spawns an external embedder process per chunk.
type Client struct {
	// Binary is the embedder executable, e.g. "python3".
	Binary string
	// Args are extra leading arguments before the base64 payload, e.g.
	// []string{"generate_embedding.py"}.
	Args []string
	// Timeout bounds each invocation; zero uses DefaultTimeout.
	Timeout time.Duration
}

// NewDefault returns a Client matching the original's default invocation:
// `python3 generate_embedding.py <base64>`.
func NewDefault() *Client {
	return &Client{Binary: "python3", Args: []string{"generate_embedding.py"}, Timeout: DefaultTimeout}
}

// Embed runs the embedder against chunk and returns its vector.
func (c *Client) Embed(ctx context.Context, chunkData []byte) ([]float32, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	encoded := base64.StdEncoding.EncodeToString(chunkData)
	args := append(append([]string{}, c.Args...), encoded)

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("embed: %w", archiveerr.ErrEmbedderTimeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("embed: %w: %v", archiveerr.ErrEmbedderUnavailable, err)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return nil, fmt.Errorf("embed: %w: %v", archiveerr.ErrEmbedderUnavailable, execErr)
	}
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %s", archiveerr.ErrEmbedderFailed, stderr.String())
	}

	var vec []float32
	if err := json.Unmarshal(stdout.Bytes(), &vec); err != nil {
		return nil, fmt.Errorf("embed: %w: %v", archiveerr.ErrEmbedderMalformed, err)
	}
	return vec, nil
}
