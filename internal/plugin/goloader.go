package plugin

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

//go:embed harness_main.go.tmpl
var harnessSource []byte

const (
	defaultGoBinary = "go"
	defaultTimeout  = 60 * time.Second
	buildDirName    = ".statement-agent/build"
)

// GoLoader builds parser modules with the Go toolchain. WorkDir must sit
// inside a Go module whose go.mod provides the imports generated parsers
// are allowed to use.
type GoLoader struct {
	GoBinary string
	WorkDir  string
	Timeout  time.Duration
}

func NewGoLoader(workDir string) *GoLoader {
	return &GoLoader{
		GoBinary: defaultGoBinary,
		WorkDir:  workDir,
		Timeout:  defaultTimeout,
	}
}

// Load compiles sourcePath with the harness into a fresh build directory.
func (l *GoLoader) Load(ctx context.Context, sourcePath string) (Plugin, error) {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sourcePath)
		}
		return nil, fmt.Errorf("failed to read parser module: %w", err)
	}

	workDir, err := filepath.Abs(l.workDir())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work dir: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	buildDir := filepath.Join(workDir, filepath.FromSlash(buildDirName), name)

	if err := os.RemoveAll(buildDir); err != nil {
		return nil, fmt.Errorf("failed to clean build dir: %w", err)
	}
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create build dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "parser.go"), source, 0644); err != nil {
		return nil, fmt.Errorf("failed to stage parser module: %w", err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "main.go"), harnessSource, 0644); err != nil {
		return nil, fmt.Errorf("failed to stage harness: %w", err)
	}

	binary := filepath.Join(buildDir, name)
	if runtime.GOOS == "windows" {
		binary += ".exe"
	}

	cmd := exec.CommandContext(ctx, l.goBinary(), "build", "-o", binary, "main.go", "parser.go")
	cmd.Dir = buildDir
	cmd.Env = append(os.Environ(), "GOWORK=off", "CGO_ENABLED=0")

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return nil, &LoadError{
			Source: sourcePath,
			Output: cleanBuildOutput(output.String(), buildDir),
			Err:    err,
		}
	}

	return &binaryPlugin{
		path:    binary,
		workDir: workDir,
		timeout: l.timeout(),
	}, nil
}

func (l *GoLoader) goBinary() string {
	if l.GoBinary == "" {
		return defaultGoBinary
	}
	return l.GoBinary
}

func (l *GoLoader) workDir() string {
	if l.WorkDir == "" {
		return "."
	}
	return l.WorkDir
}

func (l *GoLoader) timeout() time.Duration {
	if l.Timeout <= 0 {
		return defaultTimeout
	}
	return l.Timeout
}

// cleanBuildOutput strips the build directory from compiler messages so
// they point at parser.go the way the model wrote it.
func cleanBuildOutput(out, buildDir string) string {
	out = strings.ReplaceAll(out, buildDir+string(filepath.Separator), "")
	out = strings.ReplaceAll(out, "# command-line-arguments\n", "")
	return strings.TrimSpace(out)
}

type binaryPlugin struct {
	path    string
	workDir string
	timeout time.Duration
}

// Parse runs the built module with a minimal environment. The binary runs in
// the loader's work dir, so a relative PDF path is resolved against the
// caller's working directory first.
func (p *binaryPlugin) Parse(ctx context.Context, pdfPath string) ([]byte, error) {
	absPath, err := filepath.Abs(pdfPath)
	if err != nil {
		return nil, &RuntimeError{
			Message: fmt.Sprintf("failed to resolve %s: %v", pdfPath, err),
			Err:     err,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path, absPath)
	cmd.Dir = p.workDir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &RuntimeError{
			Message: fmt.Sprintf("parser timed out after %s", p.timeout),
			Err:     ctx.Err(),
		}
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &RuntimeError{Message: msg, Err: err}
	}

	return stdout.Bytes(), nil
}

func (p *binaryPlugin) Close() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove parser binary: %w", err)
	}
	return nil
}
