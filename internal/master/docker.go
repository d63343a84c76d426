package master

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Labels that tie a container to its service, tried in order.
const (
	swarmServiceLabel   = "com.docker.swarm.service.name"
	composeServiceLabel = "com.docker.compose.service"
)

// dockerAPI is the part of the Docker Engine client the locator uses.
type dockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	Close() error
}

// DockerLocator runs the sender inside a running container of the master
// service, as `docker exec` would.
type DockerLocator struct {
	api     dockerAPI
	service string
}

// NewDockerLocator connects to the Docker Engine. An empty host uses
// DOCKER_HOST and the other standard environment variables.
func NewDockerLocator(host, service string) (*DockerLocator, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerLocator{api: cli, service: service}, nil
}

// Close releases the Docker client.
func (l *DockerLocator) Close() error {
	return l.api.Close()
}

// Resolve finds a running container of the service, matching the swarm
// service label first and the compose service label second.
func (l *DockerLocator) Resolve(ctx context.Context) (Handle, error) {
	for _, label := range []string{swarmServiceLabel, composeServiceLabel} {
		containers, err := l.api.ContainerList(ctx, types.ContainerListOptions{
			Filters: filters.NewArgs(
				filters.Arg("label", label+"="+l.service),
				filters.Arg("status", "running"),
			),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: listing containers: %w", ErrServiceUnavailable, err)
		}
		if len(containers) > 0 {
			return &containerHandle{api: l.api, containerID: containers[0].ID}, nil
		}
	}
	return nil, fmt.Errorf("%w: no running container for service %q", ErrServiceUnavailable, l.service)
}

type containerHandle struct {
	api         dockerAPI
	containerID string
}

func (h *containerHandle) Exec(ctx context.Context, argv []string) (Output, error) {
	created, err := h.api.ContainerExecCreate(ctx, h.containerID, types.ExecConfig{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return Output{ExitCode: -1}, h.execErr(ctx, fmt.Errorf("creating exec: %w", err))
	}

	attach, err := h.api.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return Output{ExitCode: -1}, h.execErr(ctx, fmt.Errorf("attaching exec: %w", err))
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copied <- err
	}()

	select {
	case err := <-copied:
		if err != nil {
			return Output{ExitCode: -1}, h.execErr(ctx, fmt.Errorf("reading exec output: %w", err))
		}
	case <-ctx.Done():
		attach.Close()
		<-copied
		return Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1},
			fmt.Errorf("exec in %s: %w", h.containerID, ctx.Err())
	}

	inspect, err := h.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1},
			h.execErr(ctx, fmt.Errorf("inspecting exec: %w", err))
	}

	return Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// execErr keeps context errors recognisable and wraps everything else as a
// process failure.
func (h *containerHandle) execErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("exec in %s: %w", h.containerID, ctxErr)
	}
	return &ProcessError{ExitCode: -1, Err: err}
}
