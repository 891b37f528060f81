// Package bootstrap wires a runnable container.Container from a
// config.View and a registry.Registry, the glue cmd/streamcontainer's
// run command delegates to. None of this package's logic is itself
// part of the container's data path; it only runs once, at startup.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/streamcontainer/pkg/chooser"
	"github.com/cuemby/streamcontainer/pkg/config"
	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/model"
	container "github.com/cuemby/streamcontainer/pkg/runloop"
	"github.com/cuemby/streamcontainer/pkg/producer"
	"github.com/cuemby/streamcontainer/pkg/registry"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/cuemby/streamcontainer/pkg/storageengine"
	"github.com/cuemby/streamcontainer/pkg/task"
	"github.com/cuemby/streamcontainer/pkg/taskstorage"
)

// input is one "system.stream" entry from task.inputs.
type input struct {
	system, stream string
}

func parseInputs(raw string) ([]input, error) {
	var out []input
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		idx := strings.LastIndexByte(field, '.')
		if idx <= 0 || idx == len(field)-1 {
			return nil, fmt.Errorf("bootstrap: task.inputs entry %q must be \"system.stream\"", field)
		}
		out = append(out, input{system: field[:idx], stream: field[idx+1:]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("bootstrap: task.inputs must list at least one system.stream")
	}
	return out, nil
}

func systemNames(inputs []input) []string {
	seen := make(map[string]bool)
	var out []string
	for _, in := range inputs {
		if !seen[in.system] {
			seen[in.system] = true
			out = append(out, in.system)
		}
	}
	return out
}

// Build wires every subsystem named in cfg and returns a Container ready
// to Run for taskName across the given partitions. workingDir roots the
// local store files; the checkpoint manager's location comes from its
// own config (task.checkpoint.dir for the built-in file manager).
func Build(reg *registry.Registry, taskName string, partitions []model.Partition, cfg config.View, workingDir string) (*container.Container, error) {
	inputs, err := parseInputs(cfg.GetString(config.KeyTaskInputs, ""))
	if err != nil {
		return nil, err
	}

	taskClass, err := cfg.Require(config.KeyTaskClass)
	if err != nil {
		return nil, err
	}
	taskFactory, err := reg.Tasks.Resolve(taskClass)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolve task.class: %w", err)
	}

	serdeReg := serde.NewRegistry()
	serdeManager := serde.NewManager(serdeReg)
	systemCfgs := make(map[string]config.View, len(inputs))
	systemFactoryNames := make(map[string]string, len(inputs))

	for _, sys := range systemNames(inputs) {
		factoryName, err := cfg.Require(fmt.Sprintf(config.KeySystemFactoryFmt, sys))
		if err != nil {
			return nil, err
		}
		systemFactoryNames[sys] = factoryName
		systemCfgs[sys] = cfg.Subtree(fmt.Sprintf("systems.%s.", sys))

		if err := bindSystemSerde(reg, serdeReg, cfg, sys); err != nil {
			return nil, err
		}
	}
	for _, in := range inputs {
		if err := bindStreamSerde(reg, serdeReg, cfg, in.system, in.stream); err != nil {
			return nil, err
		}
	}

	chooserClass := cfg.GetString(config.KeyTaskChooserClass, "")
	var chsr chooser.Chooser
	if chooserClass == "" {
		chsr = chooser.NewRoundRobinChooser(nil)
	} else {
		chooserFactory, err := reg.Choosers.Resolve(chooserClass)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: resolve task.message.chooser.class: %w", err)
		}
		if chsr, err = chooserFactory(cfg); err != nil {
			return nil, fmt.Errorf("bootstrap: build chooser: %w", err)
		}
	}

	cmux := consumer.NewMultiplexer(chsr)
	for sys, factoryName := range systemFactoryNames {
		consumerFactory, err := reg.Consumers.Resolve(factoryName)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: resolve consumer for system %q: %w", sys, err)
		}
		client, err := consumerFactory(systemCfgs[sys])
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build consumer for system %q: %w", sys, err)
		}
		cmux.RegisterSystem(sys, client)
	}

	pmux := producer.NewMultiplexer(
		serdeManager,
		cfg.GetInt(config.KeyTaskProducerBatchSize, config.DefaultProducerBatchSize),
		cfg.GetDuration(config.KeyTaskProducerFlushMs, config.DefaultProducerFlush),
	)
	for sys, factoryName := range systemFactoryNames {
		producerFactory, err := reg.Producers.Resolve(factoryName)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: resolve producer for system %q: %w", sys, err)
		}
		client, err := producerFactory(systemCfgs[sys])
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build producer for system %q: %w", sys, err)
		}
		if err := pmux.RegisterSystem(context.Background(), sys, client); err != nil {
			return nil, fmt.Errorf("bootstrap: start producer for system %q: %w", sys, err)
		}
	}

	checkpointFactoryName, err := cfg.Require(config.KeyTaskCheckpointFactory)
	if err != nil {
		return nil, err
	}
	checkpointFactory, err := reg.Checkpoints.Resolve(checkpointFactoryName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolve task.checkpoint.factory: %w", err)
	}
	ckMgr, err := checkpointFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build checkpoint manager: %w", err)
	}

	listeners, err := resolveListeners(reg, cfg)
	if err != nil {
		return nil, err
	}

	newRestoreConsumer := func(system string) (consumer.SystemConsumer, error) {
		factoryName, err := cfg.Require(fmt.Sprintf(config.KeySystemFactoryFmt, system))
		if err != nil {
			return nil, err
		}
		factory, err := reg.Consumers.Resolve(factoryName)
		if err != nil {
			return nil, err
		}
		return factory(cfg.Subtree(fmt.Sprintf("systems.%s.", system)))
	}

	windowInterval := windowIntervalFor(cfg)
	commitInterval := cfg.GetDuration(config.KeyTaskCommitMs, config.DefaultCommitInterval)

	c := container.New(
		taskName, cmux, pmux, ckMgr,
		cfg.GetDuration(config.KeyTaskPollTimeoutMs, config.DefaultPollTimeout),
		cfg.GetDuration(config.KeyTaskShutdownGraceMs, config.DefaultShutdownGrace),
	).WithSerde(serdeManager, cfg.GetBool(config.KeyTaskDropDeserErrors, false)).
		WithMetricsAddr(fmt.Sprintf(":%d", cfg.GetInt(config.KeyTaskMetricsPort, config.DefaultMetricsPort)))

	for _, partition := range partitions {
		ssps := make([]model.SSP, 0, len(inputs))
		for _, in := range inputs {
			ssps = append(ssps, model.SSP{System: in.system, Stream: in.stream, Partition: partition})
		}

		cp, err := ckMgr.ReadLast(model.CheckpointKey{TaskName: taskName, Partition: partition})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: read checkpoint for partition %d: %w", partition, err)
		}
		for _, in := range inputs {
			ssp := model.SSP{System: in.system, Stream: in.stream, Partition: partition}
			startOffset := startOffsetFor(cfg, cp, ssp, in.system, in.stream)
			if err := cmux.RegisterSSP(ssp, startOffset); err != nil {
				return nil, fmt.Errorf("bootstrap: register %s: %w", ssp, err)
			}
		}

		storageMgr, err := buildStorage(cfg, serdeManager, pmux, newRestoreConsumer, partition, workingDir)
		if err != nil {
			return nil, err
		}

		t, err := taskFactory(cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build task instance for partition %d: %w", partition, err)
		}
		inst := task.NewInstance(taskName, partition, t, pmux, ckMgr, listeners)
		c.AddBinding(inst, ssps, storageMgr, windowInterval, commitInterval)
	}

	return c, nil
}

// windowIntervalFor returns -1 (windowing disabled) when task.window.ms
// is absent or negative, matching config.DefaultWindowMs's sentinel.
func windowIntervalFor(cfg config.View) time.Duration {
	ms := cfg.GetInt(config.KeyTaskWindowMs, config.DefaultWindowMs)
	if ms < 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}

func startOffsetFor(cfg config.View, cp model.Checkpoint, ssp model.SSP, system, stream string) model.Offset {
	reset := cfg.GetBool(fmt.Sprintf(config.KeyStreamResetOffsetFmt, system, stream), false)
	if !reset {
		if off, ok := cp[ssp]; ok {
			return off
		}
	}
	return model.Offset(cfg.GetString(fmt.Sprintf(config.KeyStreamDefaultOffsetFmt, system, stream), config.OffsetEarliest))
}

func bindSystemSerde(reg *registry.Registry, serdeReg *serde.Registry, cfg config.View, system string) error {
	keyName := cfg.GetString(fmt.Sprintf(config.KeySystemKeySerdeFmt, system), "json")
	msgName := cfg.GetString(fmt.Sprintf(config.KeySystemMsgSerdeFmt, system), "json")
	keyCodec, err := resolveCodec(reg, serdeReg, cfg, keyName)
	if err != nil {
		return err
	}
	msgCodec, err := resolveCodec(reg, serdeReg, cfg, msgName)
	if err != nil {
		return err
	}
	serdeReg.BindSystem(system, keyCodec, msgCodec)
	return nil
}

func bindStreamSerde(reg *registry.Registry, serdeReg *serde.Registry, cfg config.View, system, stream string) error {
	keyName, hasKey := cfg.GetStringOpt(fmt.Sprintf(config.KeyStreamKeySerdeFmt, system, stream))
	msgName, hasMsg := cfg.GetStringOpt(fmt.Sprintf(config.KeyStreamMsgSerdeFmt, system, stream))
	if !hasKey && !hasMsg {
		return nil
	}
	var keyCodec, msgCodec serde.Codec
	var err error
	if hasKey {
		if keyCodec, err = resolveCodec(reg, serdeReg, cfg, keyName); err != nil {
			return err
		}
	}
	if hasMsg {
		if msgCodec, err = resolveCodec(reg, serdeReg, cfg, msgName); err != nil {
			return err
		}
	}
	serdeReg.BindStream(model.SystemStream{System: system, Stream: stream}, keyCodec, msgCodec)
	return nil
}

// resolveCodec returns the named codec, registering it into serdeReg on
// first use if a registry.CodecFactory is registered for that name. A
// name already bound directly on serdeReg (e.g. the built-in "json")
// short-circuits the registry lookup.
func resolveCodec(reg *registry.Registry, serdeReg *serde.Registry, cfg config.View, name string) (serde.Codec, error) {
	if c, err := serdeReg.Codec(name); err == nil {
		return c, nil
	}
	factory, err := reg.Codecs.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolve codec %q: %w", name, err)
	}
	codecCfg := cfg.Subtree(fmt.Sprintf("serializers.registry.%s.", name))
	c, err := factory(codecCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build codec %q: %w", name, err)
	}
	serdeReg.RegisterCodec(name, c)
	return c, nil
}

func resolveListeners(reg *registry.Registry, cfg config.View) ([]task.LifecycleListener, error) {
	var listeners []task.LifecycleListener
	for _, name := range strings.Split(cfg.GetString(config.KeyTaskLifecycleListeners, ""), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		className, err := cfg.Require(fmt.Sprintf(config.KeyLifecycleListenerClassFmt, name))
		if err != nil {
			return nil, err
		}
		factory, err := reg.Listeners.Resolve(className)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: resolve lifecycle listener %q: %w", name, err)
		}
		l, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build lifecycle listener %q: %w", name, err)
		}
		lifecycle, ok := l.(task.LifecycleListener)
		if !ok {
			return nil, fmt.Errorf("bootstrap: lifecycle listener %q (%s) does not implement task.LifecycleListener", name, className)
		}
		listeners = append(listeners, lifecycle)
	}
	return listeners, nil
}

// buildStorage wires a taskstorage.Manager for every store name present
// under "stores." in cfg. Only the "bolt" engine kind is supported
// (storageengine ships no second implementation); anything else is a
// setup error.
func buildStorage(
	cfg config.View,
	serdeManager *serde.Manager,
	prod *producer.Multiplexer,
	newRestoreConsumer func(system string) (consumer.SystemConsumer, error),
	partition model.Partition,
	workingDir string,
) (*taskstorage.Manager, error) {
	names := cfg.NamesUnder("stores.")
	if len(names) == 0 {
		return nil, nil
	}

	var stores []taskstorage.StoreConfig
	for _, name := range names {
		engineKind := cfg.GetString(fmt.Sprintf(config.KeyStoreFactoryFmt, name), "bolt")
		if engineKind != "bolt" {
			return nil, fmt.Errorf("bootstrap: store %q: unsupported engine %q", name, engineKind)
		}
		dir := filepath.Join(workingDir, "state", name, strconv.Itoa(int(partition)))
		engine, err := storageengine.OpenBoltEngine(dir)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open store %q: %w", name, err)
		}

		var changelog model.SystemStream
		if raw := cfg.GetString(fmt.Sprintf(config.KeyStoreChangelogFmt, name), ""); raw != "" {
			idx := strings.LastIndexByte(raw, '.')
			if idx <= 0 || idx == len(raw)-1 {
				return nil, fmt.Errorf("bootstrap: store %q changelog %q must be \"system.stream\"", name, raw)
			}
			changelog = model.SystemStream{System: raw[:idx], Stream: raw[idx+1:]}
		}

		stores = append(stores, taskstorage.StoreConfig{
			Name:            name,
			Engine:          engine,
			ChangelogStream: changelog,
			Partition:       partition,
		})
	}

	return taskstorage.NewManager(stores, serdeManager, prod, newRestoreConsumer), nil
}
