package bridge

import (
	"context"
	"sync"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
)

// refField is the long field of the Cedarling class that holds the instance id.
const refField = "cedarlingRef"

// Engine is the decision engine behind one Cedarling object.
type Engine interface {
	Authorize(ctx context.Context, req authz.Request) (*authz.Result, error)
	AuthorizeUnsigned(ctx context.Context, req authz.RequestUnsigned) (*authz.Result, error)
	Close(ctx context.Context) error
}

// instance is an engine attached to one foreign object. mu serializes
// authorization calls against the engine.
type instance struct {
	id     int64
	mu     sync.Mutex
	engine Engine
	owner  foreign.Global
}

// instanceTable maps the ids stored in cedarlingRef fields to instances.
type instanceTable struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*instance
}

func newInstanceTable() *instanceTable {
	return &instanceTable{byID: make(map[int64]*instance)}
}

// add stores an instance and assigns its id. Ids start at 1; 0 means detached.
func (t *instanceTable) add(inst *instance) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	inst.id = t.nextID
	t.byID[inst.id] = inst
	return inst.id
}

func (t *instanceTable) get(id int64) (*instance, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	inst, ok := t.byID[id]
	return inst, ok
}

// take removes and returns the instance with id.
func (t *instanceTable) take(id int64) (*instance, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	inst, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	return inst, ok
}

func (t *instanceTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
