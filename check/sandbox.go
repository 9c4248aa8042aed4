package check

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	docker "github.com/docker/docker/client"

	"github.com/repograde/backend/repofetch"
)

// ExecLimits bound one sandboxed execution. All limits are hard
// requirements for dynamic checks: submitted code never runs without
// them.
type ExecLimits struct {
	WallTime    time.Duration
	MemoryBytes int64
	NanoCPUs    int64
	MaxOutput   int // bytes of combined stdout+stderr kept
}

// ExecResult is the outcome of one sandboxed execution.
type ExecResult struct {
	ExitCode  int64
	Output    string
	Truncated bool
	Elapsed   time.Duration
}

// Sandbox executes a command against a repository snapshot in an
// isolated, resource-bounded environment.
type Sandbox interface {
	Exec(ctx context.Context, snapshot *repofetch.Snapshot, cmd []string, limits ExecLimits) (ExecResult, error)
}

// DockerSandbox runs commands in a throwaway container with the
// snapshot unpacked under /work and networking disabled.
type DockerSandbox struct {
	client *docker.Client
	image  string
}

func NewDockerSandbox(client *docker.Client, image string) *DockerSandbox {
	return &DockerSandbox{client: client, image: image}
}

func (s *DockerSandbox) Exec(ctx context.Context, snapshot *repofetch.Snapshot, cmd []string, limits ExecLimits) (ExecResult, error) {
	if limits.WallTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.WallTime)
		defer cancel()
	}

	resp, err := s.client.ContainerCreate(ctx,
		&container.Config{
			Image:           s.image,
			Cmd:             cmd,
			WorkingDir:      "/work",
			NetworkDisabled: true,
		},
		&container.HostConfig{
			Resources: container.Resources{
				Memory:   limits.MemoryBytes,
				NanoCPUs: limits.NanoCPUs,
			},
			AutoRemove: false,
		},
		nil, nil, "")
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to create sandbox container: %w", err)
	}
	id := resp.ID
	defer s.client.ContainerRemove(context.WithoutCancel(ctx), id,
		container.RemoveOptions{Force: true})

	tarball, err := snapshotTar(snapshot)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to pack snapshot: %w", err)
	}
	err = s.client.CopyToContainer(ctx, id, "/", tarball, container.CopyToContainerOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to copy snapshot into sandbox: %w", err)
	}

	start := time.Now()
	if err := s.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return ExecResult{}, fmt.Errorf("failed to start sandbox: %w", err)
	}

	statusCh, errCh := s.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return ExecResult{}, ctx.Err()
		}
		return ExecResult{}, fmt.Errorf("sandbox wait failed: %w", err)
	case status := <-statusCh:
		exitCode = status.StatusCode
	}
	elapsed := time.Since(start)

	output, truncated, err := s.readLogs(ctx, id, limits.MaxOutput)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to read sandbox logs: %w", err)
	}

	return ExecResult{
		ExitCode:  exitCode,
		Output:    output,
		Truncated: truncated,
		Elapsed:   elapsed,
	}, nil
}

// readLogs strips the 8-byte stream multiplexing headers the Docker
// daemon prefixes to each log frame.
func (s *DockerSandbox) readLogs(ctx context.Context, id string, maxOutput int) (string, bool, error) {
	reader, err := s.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", false, err
	}
	defer reader.Close()

	var buf bytes.Buffer
	truncated := false
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return "", false, err
		}
		frameSize := int(binary.BigEndian.Uint32(header[4:8]))
		frame := make([]byte, frameSize)
		if _, err := io.ReadFull(reader, frame); err != nil {
			return "", false, err
		}
		if maxOutput > 0 && buf.Len()+len(frame) > maxOutput {
			frame = frame[:maxOutput-buf.Len()]
			truncated = true
		}
		buf.Write(frame)
		if truncated {
			break
		}
	}
	return buf.String(), truncated, nil
}

func snapshotTar(snapshot *repofetch.Snapshot) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, path := range snapshot.Paths() {
		content := snapshot.File(path)
		hdr := &tar.Header{
			Name: "work/" + path,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
