package miner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// dockerRunner runs the miner binary inside a throwaway container per
// WorkItem, for operators who ship the miner as an OCI image instead of
// a bare binary (spec.md §4.6's [DOMAIN] process-isolation alternative).
type dockerRunner struct {
	cli   *client.Client
	image string
}

// NewDockerRunner builds a Runner backend that launches one container
// per Run call using image, honoring context cancellation via
// ContainerStop (SIGTERM, then Docker's own SIGKILL escalation after the
// stop timeout).
func NewDockerRunner(cli *client.Client, image string) Runner {
	return &dockerRunner{cli: cli, image: image}
}

func (r *dockerRunner) Run(ctx context.Context, p Params, graceWait time.Duration) (Result, error) {
	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image: r.image,
		Cmd:   p.args(),
	}, nil, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("miner: container create: %w", err)
	}
	defer r.cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := r.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return Result{}, fmt.Errorf("miner: container start: %w", err)
	}

	waitCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		grace := int(graceWait.Seconds())
		_ = r.cli.ContainerStop(context.Background(), resp.ID, container.StopOptions{Timeout: &grace})
		return Result{}, ctx.Err()
	case err := <-errCh:
		return Result{}, fmt.Errorf("miner: container wait: %w", err)
	case status := <-waitCh:
		if status.StatusCode != 0 {
			return Result{}, fmt.Errorf("miner: container exited with status %d", status.StatusCode)
		}
	}

	return r.readResult(ctx, resp.ID)
}

func (r *dockerRunner) readResult(ctx context.Context, containerID string) (Result, error) {
	out, err := r.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{ShowStdout: true})
	if err != nil {
		return Result{}, fmt.Errorf("miner: container logs: %w", err)
	}
	defer out.Close()

	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var res Result
		if err := json.Unmarshal(scanner.Bytes(), &res); err == nil {
			return res, nil
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return Result{}, fmt.Errorf("miner: read container logs: %w", err)
	}
	return Result{}, fmt.Errorf("miner: container exited without a result line")
}
