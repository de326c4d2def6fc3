package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/crucible/internal/config"
	"github.com/dyluth/crucible/internal/docker"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Provision a local Redis for the redis backend",
	Long: `Manage a Docker-hosted Redis that backs the cache, library and snapshots.

One container is kept per namespace, named crucible-redis-<namespace>, and
published on 127.0.0.1 only. The image and preferred host port come from
services.redis in crucible.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var storeUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the Redis container for this namespace",
	Args:  cobra.NoArgs,
	RunE:  runStoreUp,
}

var storeDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the Redis container for this namespace",
	Long: `Stop and remove the Redis container for this namespace.

Everything stored in it (cache, library, snapshots, stored credential) is lost.
The command does not prompt for confirmation and executes immediately.`,
	Args: cobra.NoArgs,
	RunE: runStoreDown,
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Redis container for this namespace",
	Args:  cobra.NoArgs,
	RunE:  runStoreStatus,
}

func init() {
	storeCmd.AddCommand(storeUpCmd, storeDownCmd, storeStatusCmd)
	rootCmd.AddCommand(storeCmd)
}

func runStoreUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ns := cfg.Storage.Namespace

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	existing, err := docker.FindRedis(ctx, cli, ns)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.State == "running" {
			printer.Info("Redis for namespace '%s' is already running\n", ns)
			printRedisHint(c.HostPort)
			return nil
		}
	}
	if len(existing) > 0 {
		return printer.Error(
			fmt.Sprintf("stopped Redis container found for namespace '%s'", ns),
			fmt.Sprintf("Container %s exists but is not running.", existing[0].Name),
			[]string{"Remove it and start fresh:\n  crucible store down\n  crucible store up"},
		)
	}

	used, err := docker.UsedRedisPorts(ctx, cli)
	if err != nil {
		return err
	}
	port, err := docker.FindAvailablePort(cfg.Services.Redis.Port, used)
	if err != nil {
		return err
	}
	printer.Success("Allocated Redis port: %d\n", port)

	rc, err := docker.StartRedis(ctx, cli, docker.RedisSpec{
		Namespace: ns,
		Image:     cfg.Services.Redis.Image,
		HostPort:  port,
	})
	if err != nil {
		return printer.ErrorWithContext(
			"failed to start Redis",
			err.Error(),
			map[string]string{"Image": cfg.Services.Redis.Image},
			[]string{fmt.Sprintf("Pull the image first:\n  docker pull %s", cfg.Services.Redis.Image)},
		)
	}

	printer.Success("Started %s\n", rc.Name)
	printRedisHint(port)
	return nil
}

func printRedisHint(port int) {
	url := docker.RedisURL(port)
	printer.Println()
	printer.Info("Point Crucible at it with either:\n")
	printer.Info("  export %s=%s\n", config.EnvRedisURL, url)
	printer.Info("or in crucible.yml:\n")
	printer.Info("  storage:\n    backend: redis\n    redis_url: %s\n", url)
}

func runStoreDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ns := cfg.Storage.Namespace

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	removed, err := docker.RemoveRedis(ctx, cli, ns, func(name string) {
		printer.Step("Removing %s\n", name)
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		return printer.Error(
			fmt.Sprintf("no Redis found for namespace '%s'", ns),
			"Nothing to remove.",
			[]string{"Start one:\n  crucible store up"},
		)
	}

	printer.Success("Removed Redis for namespace '%s'\n", ns)
	return nil
}

func runStoreStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ns := cfg.Storage.Namespace

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	found, err := docker.FindRedis(ctx, cli, ns)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		printer.Info("No Redis provisioned for namespace '%s'\n", ns)
		return nil
	}

	for _, c := range found {
		printer.Printf("%-32s %-10s %s\n", c.Name, c.State, docker.RedisURL(c.HostPort))
	}
	return nil
}
