package container

import (
	"context"

	"github.com/cuemby/streamcontainer/pkg/storageengine"
	"github.com/cuemby/streamcontainer/pkg/task"
	"github.com/cuemby/streamcontainer/pkg/taskstorage"
)

// storeAccessor adapts a taskstorage.Manager to task.StoreAccessor, the
// narrow view Task.Init receives via task.Context.
type storeAccessor struct {
	mgr *taskstorage.Manager
}

func (s storeAccessor) Store(name string) (task.Store, bool) {
	eng, ok := s.mgr.Store(name)
	if !ok {
		return nil, false
	}
	return storeHandle{mgr: s.mgr, name: name, engine: eng}, true
}

// storeHandle adapts one named store to task.Store: reads go straight
// to the engine, writes route through the Manager so changelog
// mutations are appended alongside the local write.
type storeHandle struct {
	mgr    *taskstorage.Manager
	name   string
	engine storageengine.Engine
}

func (h storeHandle) Get(key []byte) ([]byte, error) {
	return h.engine.Get(key)
}

func (h storeHandle) Put(ctx context.Context, key, value []byte) error {
	return h.mgr.Put(ctx, h.name, key, value)
}

func (h storeHandle) Delete(ctx context.Context, key []byte) error {
	return h.mgr.Delete(ctx, h.name, key)
}

func (h storeHandle) Range(start, end []byte, fn func(key, value []byte) bool) error {
	return h.engine.Range(start, end, fn)
}
