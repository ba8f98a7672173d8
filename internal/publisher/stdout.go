package publisher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ryosukesatoh/court-digest/internal/digest"
)

// StdoutPublisher prints the plain-text digest.
type StdoutPublisher struct {
	w io.Writer
}

func NewStdoutPublisher(w io.Writer) *StdoutPublisher {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutPublisher{w: w}
}

func (p *StdoutPublisher) Publish(_ context.Context, d *digest.Digest) error {
	if _, err := fmt.Fprintln(p.w, d.Text()); err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	return nil
}
