package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// Piper synthesizes speech with a local piper binary. Voice and language are
// fixed by the .onnx model file, not by runtime flags.
type Piper struct {
	id    string
	bin   string
	model string
}

func NewPiper(d provider.Descriptor, bin, model string) *Piper {
	if bin == "" {
		bin = "piper"
	}
	return &Piper{id: d.ID, bin: bin, model: model}
}

func (p *Piper) ID() string { return p.id }

// Invoke pipes the text into piper on stdin and returns the WAV it writes to
// stdout.
func (p *Piper) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	if p.model == "" {
		return nil, provider.Auth(p.id, errors.New("piper model path is required (set PIPER_MODEL)"))
	}
	if _, err := os.Stat(p.model); err != nil {
		return nil, provider.Auth(p.id, fmt.Errorf("piper model: %w", err))
	}

	cmd := exec.CommandContext(ctx, p.bin, "--model", p.model, "--output_file", "-")
	cmd.Stdin = strings.NewReader(call.Content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, provider.Auth(p.id, fmt.Errorf("piper binary: %w", err))
		case ctx.Err() != nil:
			return nil, provider.Transient(p.id, ctx.Err())
		default:
			return nil, provider.Transient(p.id, fmt.Errorf("piper failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String())))
		}
	}
	if stdout.Len() == 0 {
		return nil, provider.Transient(p.id, errors.New("piper produced no audio"))
	}

	return &provider.Output{
		Audio:       stdout.Bytes(),
		ContentType: "audio/wav",
		Model:       p.model,
	}, nil
}
