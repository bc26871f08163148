// Package relationship discovers parent/child dependencies between entity
// types and drives the depth-bounded export of related records.
package relationship

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/datalift/bulkvault/internal/bulk"
	"github.com/datalift/bulkvault/internal/logger"
)

// excludedSuffixes mark generated child entity types that carry no business
// data worth traversing.
var excludedSuffixes = []string{
	"History",
	"Share",
	"Feed",
	"ChangeEvent",
	"Tag",
	"__Tag",
}

// priorityEntities are the child entity types traversed recursively when
// building a dependency tree. Everything else is exported one level deep at
// most.
var priorityEntities = map[string]struct{}{
	"Contact":                {},
	"Opportunity":            {},
	"Case":                   {},
	"Task":                   {},
	"Event":                  {},
	"Note":                   {},
	"Attachment":             {},
	"OpportunityLineItem":    {},
	"OpportunityContactRole": {},
	"CaseComment":            {},
	"Contract":               {},
	"Order":                  {},
	"OrderItem":              {},
	"Quote":                  {},
	"QuoteLineItem":          {},
	"Asset":                  {},
	"Entitlement":            {},
	"ServiceContract":        {},
}

// DependencyEdge is one discovered parent-to-child dependency: records of
// ChildEntity reference the parent through ForeignKeyField.
type DependencyEdge struct {
	ChildEntity      string
	ForeignKeyField  string
	RelationshipName string
	Priority         bool
}

// Analyzer discovers and classifies child relationships from remote schema
// descriptions. Discovery results are cached per entity type.
type Analyzer struct {
	client *bulk.Client
	logger *logger.Logger

	mu    sync.Mutex
	cache map[string][]DependencyEdge
}

// NewAnalyzer creates a relationship analyzer over the given protocol client.
func NewAnalyzer(client *bulk.Client, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Analyzer{
		client: client,
		logger: log,
		cache:  make(map[string][]DependencyEdge),
	}
}

// DiscoverChildren returns the exportable child dependencies of one entity
// type, excluding generated system children and edges without a usable
// foreign key. Edges are ordered priority-first, then alphabetically, so
// traversal order is deterministic.
func (a *Analyzer) DiscoverChildren(ctx context.Context, entity string) ([]DependencyEdge, error) {
	a.mu.Lock()
	if cached, ok := a.cache[entity]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	desc, err := a.client.Describe(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to discover children of %s: %w", entity, err)
	}

	var edges []DependencyEdge
	for _, rel := range desc.ChildRelationships {
		if rel.ChildEntity == "" || rel.Field == "" {
			continue
		}
		if isExcluded(rel.ChildEntity) {
			continue
		}
		if bulk.IsKnownUnsupported(rel.ChildEntity) {
			continue
		}
		edges = append(edges, DependencyEdge{
			ChildEntity:      rel.ChildEntity,
			ForeignKeyField:  rel.Field,
			RelationshipName: rel.RelationshipName,
			Priority:         IsPriority(rel.ChildEntity),
		})
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Priority != edges[j].Priority {
			return edges[i].Priority
		}
		return edges[i].ChildEntity < edges[j].ChildEntity
	})

	a.logger.Debugw("Child dependencies discovered",
		"entity", entity,
		"edges", len(edges),
	)

	a.mu.Lock()
	a.cache[entity] = edges
	a.mu.Unlock()
	return edges, nil
}

// IsPriority reports whether the entity type belongs to the recursively
// traversed set.
func IsPriority(entity string) bool {
	_, ok := priorityEntities[entity]
	return ok
}

func isExcluded(entity string) bool {
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(entity, suffix) {
			return true
		}
	}
	return false
}
