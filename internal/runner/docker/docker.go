// Package docker runs code blocks inside pooled Docker containers with no
// network, a read-only root filesystem, dropped capabilities and CPU,
// memory and process limits.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/devxboard/internal/runner"
)

var _ runner.Runner = (*Sandbox)(nil)

type Sandbox struct {
	cli    client.APIClient
	config Config
	logger *slog.Logger
	pool   *pool
}

// New connects to the Docker daemon from the environment, pulls the image
// and starts warming the pool.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runner: creating docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("runner: docker daemon unreachable: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	logger.Info("pulling runner image", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(pullCtx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("runner: pulling %s: %w", cfg.Image, err)
	}
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	s := &Sandbox{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   newPool(cli, cfg, logger),
	}
	s.pool.start()
	return s, nil
}

// Close removes idle containers and releases the client.
func (s *Sandbox) Close() error {
	s.pool.stop()
	return s.cli.Close()
}

// Run executes req.Code with python in a fresh container. A run that
// exceeds the configured timeout is reported with TimedOut and exit code
// 124; that is a result, not an error.
func (s *Sandbox) Run(ctx context.Context, req runner.Request) (*runner.Result, error) {
	start := time.Now()

	id, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("runner: acquiring container: %w", err)
	}
	defer s.pool.remove(id)

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	exec, err := s.cli.ContainerExecCreate(runCtx, id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   "/tmp",
		Cmd:          []string{"python", "-c", req.Code},
	})
	if err != nil {
		return nil, fmt.Errorf("runner: creating exec: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(runCtx, exec.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("runner: attaching exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, io.LimitReader(attach.Reader, 4*runner.MaxOutputBytes))
		close(copied)
	}()

	res := &runner.Result{}
	select {
	case <-copied:
		inspect, err := s.cli.ContainerExecInspect(ctx, exec.ID)
		if err != nil {
			return nil, fmt.Errorf("runner: inspecting exec: %w", err)
		}
		res.ExitCode = inspect.ExitCode
	case <-runCtx.Done():
		// Closing the hijacked connection unblocks the copier.
		attach.Close()
		<-copied
		res.ExitCode = runner.TimeoutExitCode
		res.TimedOut = true
	}

	var cutOut, cutErr bool
	res.Stdout, cutOut = runner.CapOutput(stdout.String())
	res.Stderr, cutErr = runner.CapOutput(stderr.String())
	res.Truncated = cutOut || cutErr
	res.DurationMS = time.Since(start).Milliseconds()

	s.logger.Debug("code block run",
		slog.Int("exit_code", res.ExitCode),
		slog.Bool("timed_out", res.TimedOut),
		slog.Int64("duration_ms", res.DurationMS),
	)
	return res, nil
}
