package bulk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// FieldDescribe is one field entry from the remote schema description.
type FieldDescribe struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ChildRelationship is one child edge from the remote schema description.
type ChildRelationship struct {
	ChildEntity      string `json:"childSObject"`
	Field            string `json:"field"`
	RelationshipName string `json:"relationshipName"`
	CascadeDelete    bool   `json:"cascadeDelete"`
}

// EntityDescribe is the remote schema description of one entity type.
type EntityDescribe struct {
	Name               string              `json:"name"`
	Queryable          bool                `json:"queryable"`
	Fields             []FieldDescribe     `json:"fields"`
	ChildRelationships []ChildRelationship `json:"childRelationships"`
}

// FieldPlan is the resolved export field set for one entity: the queryable
// field names to project, plus at most one large-binary field excluded from
// the tabular query and flagged for separate content fetch.
type FieldPlan struct {
	Fields    []string
	BlobField string
}

// HasBlob reports whether the plan flagged a large-binary field.
func (p *FieldPlan) HasBlob() bool { return p.BlobField != "" }

// compound field types never transfer through the bulk protocol.
var compoundFieldTypes = map[string]struct{}{
	"address":  {},
	"location": {},
}

// Describe fetches the schema description for one entity type. Results are
// cached per client; concurrent exports of related entities hit the same
// descriptions repeatedly.
func (c *Client) Describe(ctx context.Context, entity string) (*EntityDescribe, error) {
	c.describeMu.Lock()
	if c.describeCache == nil {
		c.describeCache = make(map[string]*EntityDescribe)
	}
	if cached, ok := c.describeCache[entity]; ok {
		c.describeMu.Unlock()
		return cached, nil
	}
	c.describeMu.Unlock()

	var desc EntityDescribe
	err := c.doJSON(ctx, http.MethodGet, c.restURL("/sobjects/"+entity+"/describe"), nil, &desc)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", entity, err)
	}

	c.describeMu.Lock()
	c.describeCache[entity] = &desc
	c.describeMu.Unlock()
	return &desc, nil
}

// ResolveFields turns the remote schema description into a field plan: an
// ordered, deduplicated projection. Compound fields are dropped, and the first
// large-binary field is excluded from the projection and flagged on the plan
// instead. When selected is
// non-empty the plan is restricted to that subset with the record identifier
// force-included. An entity whose every field is excluded yields
// *NoQueryableFieldsError.
func (c *Client) ResolveFields(ctx context.Context, entity string, selected []string) (*FieldPlan, error) {
	desc, err := c.Describe(ctx, entity)
	if err != nil {
		return nil, err
	}

	plan := &FieldPlan{}
	seen := make(map[string]struct{}, len(desc.Fields))
	for _, f := range desc.Fields {
		ftype := strings.ToLower(f.Type)
		if _, compound := compoundFieldTypes[ftype]; compound {
			continue
		}
		if ftype == "base64" {
			if plan.BlobField == "" {
				plan.BlobField = f.Name
				c.logger.Infow("Large binary field excluded from tabular export",
					"entity", entity,
					"field", f.Name,
				)
			}
			continue
		}
		key := strings.ToLower(f.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		plan.Fields = append(plan.Fields, f.Name)
	}

	if len(selected) > 0 {
		plan.Fields = restrictFields(plan.Fields, selected)
	}

	if len(plan.Fields) == 0 {
		return nil, &NoQueryableFieldsError{Entity: entity}
	}
	return plan, nil
}

// restrictFields intersects the queryable fields with a user selection,
// case-insensitively, always keeping the Id field. Unknown selections are
// dropped rather than failing the export.
func restrictFields(queryable, selected []string) []string {
	byLower := make(map[string]string, len(queryable))
	for _, f := range queryable {
		byLower[strings.ToLower(f)] = f
	}

	out := make([]string, 0, len(selected)+1)
	seen := make(map[string]struct{}, len(selected)+1)
	if id, ok := byLower["id"]; ok {
		out = append(out, id)
		seen["id"] = struct{}{}
	}
	for _, s := range selected {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		if canonical, ok := byLower[key]; ok {
			out = append(out, canonical)
			seen[key] = struct{}{}
		}
	}
	return out
}
