package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// pool keeps cfg.PoolSize idle containers warm. Each container serves
// exactly one run and is removed afterwards, so no state leaks between
// runs of different users.
type pool struct {
	cli    client.APIClient
	config Config
	logger *slog.Logger
	ready  chan string
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newPool(cli client.APIClient, cfg Config, logger *slog.Logger) *pool {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &pool{
		cli:    cli,
		config: cfg,
		logger: logger,
		ready:  make(chan string, size),
		done:   make(chan struct{}),
	}
}

func (p *pool) start() {
	p.logger.Info("starting runner pool", slog.Int("size", cap(p.ready)), slog.String("image", p.config.Image))
	p.wg.Add(1)
	go p.fill()
}

// stop halts refilling and removes every idle container.
func (p *pool) stop() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
	for {
		select {
		case id := <-p.ready:
			p.remove(id)
		default:
			return
		}
	}
}

// acquire blocks until a warm container is available.
func (p *pool) acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.ready:
		return id, nil
	case <-p.done:
		return "", fmt.Errorf("runner pool is shut down")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fill creates containers while there is room. A send on ready blocks while
// the pool is full, so the loop idles without polling.
func (p *pool) fill() {
	defer p.wg.Done()

	backoff := time.Second
	for {
		id, err := p.create()
		if err != nil {
			p.logger.Error("failed to warm runner container", slog.String("error", err.Error()))
			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		select {
		case p.ready <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

func (p *pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pids := p.config.PidsLimit
	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:           p.config.Image,
		Cmd:             []string{"sleep", "infinity"},
		User:            "nobody",
		NetworkDisabled: true,
		Labels:          map[string]string{"devxboard.runner": "1"},
	}, &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:    p.config.MemoryLimit,
			NanoCPUs:  int64(p.config.CPULimit * 1e9),
			PidsLimit: &pids,
		},
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("starting container: %w", err)
	}
	return resp.ID, nil
}

func (p *pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove runner container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
