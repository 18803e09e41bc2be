package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/patient-idv/internal/application/ocr"
)

// Engine runs the tesseract CLI, one process per pass.
type Engine struct {
	bin     string
	timeout time.Duration
}

// New returns an engine for bin, resolved on PATH when possible. A missing
// binary does not fail construction; every pass then reports
// ocr.ErrEngineUnavailable.
func New(bin string, timeout time.Duration) *Engine {
	if path, err := exec.LookPath(bin); err == nil {
		bin = path
	}
	return &Engine{bin: bin, timeout: timeout}
}

// Available reports whether the binary can be found.
func (e *Engine) Available() error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%w: %v", ocr.ErrEngineUnavailable, err)
	}
	return nil
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, imagePath string, pass ocr.Pass) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, Args(imagePath, pass)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("%w: %v", ocr.ErrEngineUnavailable, err)
		}
		return "", fmt.Errorf("tesseract %s: %w: %s", pass.Name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Args builds the command line for one pass. Output always goes to stdout.
func Args(imagePath string, pass ocr.Pass) []string {
	args := []string{imagePath, "stdout", "--oem", "1", "--psm", strconv.Itoa(pass.PSM)}
	if pass.Digits {
		args = append(args, "-c", "tessedit_char_whitelist=0123456789", "-c", "classify_bln_numeric_mode=1", "-c", "user_defined_dpi=300")
	}
	if pass.TSV {
		args = append(args, "tsv")
	}
	return args
}
