package docker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const redisContainerPort = nat.Port("6379/tcp")

// RedisSpec describes the Redis container backing a namespace.
type RedisSpec struct {
	Namespace string
	Image     string
	HostPort  int
	RunID     string
}

// RedisContainer is a provisioned Redis found by label.
type RedisContainer struct {
	ID       string
	Name     string
	State    string
	HostPort int
}

// containerConfig builds the create-time configuration for spec.
// The port is published on loopback only.
func (s RedisSpec) containerConfig() (*container.Config, *container.HostConfig) {
	labels := BuildLabels(s.Namespace, s.RunID, ComponentRedis)
	labels[LabelRedisPort] = strconv.Itoa(s.HostPort)

	cfg := &container.Config{
		Image:  s.Image,
		Labels: labels,
		ExposedPorts: nat.PortSet{
			redisContainerPort: struct{}{},
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			redisContainerPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: strconv.Itoa(s.HostPort),
				},
			},
		},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	return cfg, hostCfg
}

// redisFilters selects the Redis containers of a namespace.
func redisFilters(namespace string) filters.Args {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=true", LabelProject))
	f.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRedis))
	f.Add("label", fmt.Sprintf("%s=%s", LabelNamespace, namespace))
	return f
}

// toRedisContainer reads the summary Docker returns for a labelled container.
func toRedisContainer(c types.Container) RedisContainer {
	rc := RedisContainer{ID: c.ID, State: c.State}
	if len(c.Names) > 0 {
		rc.Name = c.Names[0]
	}
	if port, err := strconv.Atoi(c.Labels[LabelRedisPort]); err == nil {
		rc.HostPort = port
	}
	return rc
}

// FindRedis returns the Redis containers provisioned for namespace, running or not.
func FindRedis(ctx context.Context, cli *client.Client, namespace string) ([]RedisContainer, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: redisFilters(namespace),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]RedisContainer, 0, len(containers))
	for _, c := range containers {
		out = append(out, toRedisContainer(c))
	}
	return out, nil
}

// StartRedis creates and starts the Redis container for spec.
// The image must already be available locally or pullable by the daemon.
func StartRedis(ctx context.Context, cli *client.Client, spec RedisSpec) (RedisContainer, error) {
	if spec.RunID == "" {
		spec.RunID = GenerateRunID()
	}
	cfg, hostCfg := spec.containerConfig()
	name := RedisContainerName(spec.Namespace)

	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return RedisContainer{}, fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return RedisContainer{}, fmt.Errorf("failed to start Redis container: %w", err)
	}

	return RedisContainer{ID: resp.ID, Name: name, State: "running", HostPort: spec.HostPort}, nil
}

// RemoveRedis stops and removes every Redis container of namespace.
// onStep, if set, is called before each container is stopped. Returns how many
// containers were removed.
func RemoveRedis(ctx context.Context, cli *client.Client, namespace string, onStep func(name string)) (int, error) {
	found, err := FindRedis(ctx, cli, namespace)
	if err != nil {
		return 0, err
	}

	timeout := 10
	for _, c := range found {
		if onStep != nil {
			onStep(c.Name)
		}
		// Already-stopped containers fail to stop; removal is forced anyway.
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return 0, fmt.Errorf("failed to remove %s: %w", c.Name, err)
		}
	}
	return len(found), nil
}

// UsedRedisPorts collects the host ports claimed by every Crucible Redis
// container, across namespaces, from their port labels.
func UsedRedisPorts(ctx context.Context, cli *client.Client) (map[int]bool, error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=true", LabelProject))
	f.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRedis))

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	used := make(map[int]bool)
	for _, c := range containers {
		if rc := toRedisContainer(c); rc.HostPort > 0 {
			used[rc.HostPort] = true
		}
	}
	return used, nil
}
