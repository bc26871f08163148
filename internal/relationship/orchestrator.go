package relationship

import (
	"context"
	"sync"

	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/types"
)

// RelatedTask is one pending child export derived from a completed parent
// export: fetch Entity records whose ForeignKeyField points into the parent's
// identifier set.
type RelatedTask struct {
	Entity          string
	ParentEntity    string
	ForeignKeyField string
	Where           string
	Depth           int
	// Truncated marks that the parent identifier set exceeded the predicate
	// limit, so this task covers only part of the dependency.
	Truncated bool
}

// Orchestrator turns completed exports into follow-up tasks for dependent
// entity types, bounded by a maximum traversal depth. Callbacks are
// serialized; export workers may complete concurrently.
type Orchestrator struct {
	analyzer *Analyzer
	logger   *logger.Logger

	maxDepth     int
	idLimit      int
	priorityOnly bool

	mu        sync.Mutex
	queue     []*RelatedTask
	scheduled map[string]struct{}
	truncated int
}

// NewOrchestrator creates an orchestrator. maxDepth bounds how many
// relationship hops from a root export are traversed; priorityOnly restricts
// first-level expansion to priority entity types.
func NewOrchestrator(analyzer *Analyzer, log *logger.Logger, maxDepth, idLimit int, priorityOnly bool) *Orchestrator {
	if log == nil {
		log = logger.NewDefault()
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	if idLimit <= 0 {
		idLimit = DefaultPredicateIDLimit
	}
	return &Orchestrator{
		analyzer:     analyzer,
		logger:       log,
		maxDepth:     maxDepth,
		idLimit:      idLimit,
		priorityOnly: priorityOnly,
		scheduled:    make(map[string]struct{}),
	}
}

// OnParentComplete records a finished root export and enqueues one task per
// discovered child dependency. An empty identifier set enqueues nothing.
func (o *Orchestrator) OnParentComplete(ctx context.Context, parent string, ids *types.IdentifierSet) error {
	return o.expand(ctx, parent, parent, ids, 1)
}

// OnRelatedComplete records a finished related export. Entities within the
// depth bound have their own children enqueued, skipping the edge straight
// back to the entity this task came from.
func (o *Orchestrator) OnRelatedComplete(ctx context.Context, task *RelatedTask, ids *types.IdentifierSet) error {
	if task.Depth >= o.maxDepth {
		return nil
	}
	return o.expand(ctx, task.Entity, task.ParentEntity, ids, task.Depth+1)
}

// expand discovers the children of entity and enqueues a task per usable
// edge, filtering the edge back to cameFrom.
func (o *Orchestrator) expand(ctx context.Context, entity, cameFrom string, ids *types.IdentifierSet, depth int) error {
	if ids == nil || ids.Len() == 0 {
		return nil
	}

	edges, err := o.analyzer.DiscoverChildren(ctx, entity)
	if err != nil {
		return err
	}

	log := o.logger.WithEntity(entity)

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, edge := range edges {
		if edge.ChildEntity == entity || edge.ChildEntity == cameFrom {
			continue
		}
		if o.priorityOnly && !edge.Priority {
			continue
		}

		key := entity + ">" + edge.ChildEntity + "." + edge.ForeignKeyField
		if _, dup := o.scheduled[key]; dup {
			continue
		}

		pred := BuildWhereClause(edge.ForeignKeyField, ids, o.idLimit)
		if pred.Clause == "" {
			continue
		}
		if pred.Truncated {
			o.truncated++
			log.Warnw("Dependency expansion incomplete, identifier set truncated",
				"child", edge.ChildEntity,
				"field", edge.ForeignKeyField,
				"used", pred.IDCount,
				"total", ids.Len(),
			)
		}

		o.scheduled[key] = struct{}{}
		o.queue = append(o.queue, &RelatedTask{
			Entity:          edge.ChildEntity,
			ParentEntity:    entity,
			ForeignKeyField: edge.ForeignKeyField,
			Where:           pred.Clause,
			Depth:           depth,
			Truncated:       pred.Truncated,
		})
	}

	log.Debugw("Related tasks enqueued", "depth", depth, "pending", len(o.queue))
	return nil
}

// Next pops the oldest pending task, or nil when the queue is empty.
func (o *Orchestrator) Next() *RelatedTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	task := o.queue[0]
	o.queue = o.queue[1:]
	return task
}

// Pending returns the number of queued tasks.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// TruncatedExpansions reports how many enqueued tasks carried an incomplete
// identifier set.
func (o *Orchestrator) TruncatedExpansions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.truncated
}
