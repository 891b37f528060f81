package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/streamcontainer/pkg/bootstrap"
	"github.com/cuemby/streamcontainer/pkg/config"
	"github.com/cuemby/streamcontainer/pkg/log"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/registry"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "streamcontainer",
	Short:   "Run a single stream-processing task container",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"streamcontainer version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the container's process/window/send/commit loop until shutdown",
	Long: `Run reads TASK_NAME, CONFIG, and PARTITION_IDS from the process
environment (or CONFIG from --config-file for local development),
wires every system/store/serde/checkpoint/chooser/listener the
configuration names, and drives the assigned partitions until an
interrupt or SIGTERM is received.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config-file")
		workingDir, _ := cmd.Flags().GetString("working-dir")

		var taskName string
		var cfg config.View
		var partitions []model.Partition

		if configFile != "" {
			fileCfg, err := config.FromYAMLFile(configFile)
			if err != nil {
				return fmt.Errorf("streamcontainer: %w", err)
			}
			cfg = fileCfg

			taskName, _ = cmd.Flags().GetString("task-name")
			if taskName == "" {
				return fmt.Errorf("streamcontainer: --task-name is required with --config-file")
			}
			rawPartitions, _ := cmd.Flags().GetIntSlice("partition")
			if len(rawPartitions) == 0 {
				return fmt.Errorf("streamcontainer: --partition is required with --config-file")
			}
			for _, p := range rawPartitions {
				partitions = append(partitions, model.Partition(p))
			}
		} else {
			env, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("streamcontainer: %w", err)
			}
			cfg = env.Config
			taskName = env.TaskName
			partitions = env.Partitions
		}

		reg := registry.New()
		bootstrap.RegisterBuiltins(reg)

		c, err := bootstrap.Build(reg, taskName, partitions, cfg, workingDir)
		if err != nil {
			return fmt.Errorf("streamcontainer: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Logger.Info().Msg("shutdown signal received")
			c.RequestShutdown()
		}()

		return c.Run(ctx)
	},
}

func init() {
	runCmd.Flags().String("config-file", "", "Load CONFIG from a YAML file instead of the environment (development only)")
	runCmd.Flags().String("task-name", "", "Task name, required alongside --config-file")
	runCmd.Flags().IntSlice("partition", nil, "Partition id, repeatable, required alongside --config-file")
	runCmd.Flags().String("working-dir", ".", "Directory for local store files (checkpoints go to task.checkpoint.dir)")
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Resolve the system, store, checkpoint, and task factory names a config document references, without starting the container",
	Long: `validate-config loads a CONFIG document the same way "run" would
and resolves every system factory, store engine, the checkpoint
factory, and task.class against the built-in registry, reporting every
unresolvable name instead of stopping at the first. Serde, chooser,
and lifecycle listener names are not checked.
It never starts a consumer, producer, or store engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config-file")

		var cfg config.View
		if configFile != "" {
			fileCfg, err := config.FromYAMLFile(configFile)
			if err != nil {
				return fmt.Errorf("streamcontainer: %w", err)
			}
			cfg = fileCfg
		} else {
			env, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("streamcontainer: %w", err)
			}
			cfg = env.Config
		}

		reg := registry.New()
		bootstrap.RegisterBuiltins(reg)

		var errs []error
		errs = append(errs, registry.ValidateNames("system", cfg.NamesUnder("systems."), func(name string) error {
			factoryName, err := cfg.Require(fmt.Sprintf(config.KeySystemFactoryFmt, name))
			if err != nil {
				return err
			}
			_, err = reg.Consumers.Resolve(factoryName)
			return err
		})...)
		errs = append(errs, registry.ValidateNames("store", cfg.NamesUnder("stores."), func(name string) error {
			kind := cfg.GetString(fmt.Sprintf(config.KeyStoreFactoryFmt, name), "bolt")
			if kind != "bolt" {
				return fmt.Errorf("unsupported store engine %q", kind)
			}
			return nil
		})...)
		if checkpointFactoryName, err := cfg.Require(config.KeyTaskCheckpointFactory); err == nil {
			if _, rerr := reg.Checkpoints.Resolve(checkpointFactoryName); rerr != nil {
				errs = append(errs, rerr)
			}
		} else {
			errs = append(errs, err)
		}
		if taskClass, err := cfg.Require(config.KeyTaskClass); err == nil {
			if _, rerr := reg.Tasks.Resolve(taskClass); rerr != nil {
				errs = append(errs, rerr)
			}
		} else {
			errs = append(errs, err)
		}

		if len(errs) == 0 {
			fmt.Println("config valid: every referenced factory resolves")
			return nil
		}
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
		return fmt.Errorf("streamcontainer: %d unresolvable factory reference(s)", len(errs))
	},
}

func init() {
	validateConfigCmd.Flags().String("config-file", "", "Load CONFIG from a YAML file instead of the environment")
}
