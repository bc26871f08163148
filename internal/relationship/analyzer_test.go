package relationship

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/bulkvault/internal/bulk"
	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/transport"
)

// describeJSON builds a describe payload whose child relationships are given
// as "ChildEntity:ForeignKeyField" pairs.
func describeJSON(entity string, children ...string) string {
	var rels []string
	for _, c := range children {
		parts := strings.SplitN(c, ":", 2)
		rels = append(rels, fmt.Sprintf(
			`{"childSObject":%q,"field":%q,"relationshipName":"%ss"}`,
			parts[0], parts[1], parts[0],
		))
	}
	return fmt.Sprintf(`{"name":%q,"queryable":true,"fields":[{"name":"Id","type":"id"}],"childRelationships":[%s]}`,
		entity, strings.Join(rels, ","))
}

// newTestAnalyzer serves canned describe payloads keyed by entity name.
func newTestAnalyzer(t *testing.T, describes map[string]string) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		require.GreaterOrEqual(t, len(parts), 2)
		entity := parts[len(parts)-2]

		body, ok := describes[entity]
		if !ok {
			body = describeJSON(entity)
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	remote := config.RemoteConfig{BaseURL: srv.URL, AccessToken: "tok", APIVersion: "62.0"}
	log := logger.NewDefault()
	tm := transport.NewManager(remote, log)
	t.Cleanup(tm.Close)

	client := bulk.NewClient(remote, config.ProcessingConfig{PollIntervalSeconds: 1, MaxPollAttempts: 10}, tm, log)
	return NewAnalyzer(client, log)
}

func TestDiscoverChildrenFiltersAndClassifies(t *testing.T) {
	a := newTestAnalyzer(t, map[string]string{
		"Account": describeJSON("Account",
			"Contact:AccountId",
			"AccountHistory:AccountId",
			"AccountShare:AccountId",
			"AccountFeed:ParentId",
			"AccountChangeEvent:AccountId",
			"ContentDocumentLink:LinkedEntityId",
			"CustomThing__c:Account__c",
			"Case:AccountId",
		),
	})

	edges, err := a.DiscoverChildren(context.Background(), "Account")
	require.NoError(t, err)

	var names []string
	for _, e := range edges {
		names = append(names, e.ChildEntity)
	}
	// Priority edges first, generated and unsupported children gone.
	assert.Equal(t, []string{"Case", "Contact", "CustomThing__c"}, names)
	assert.True(t, edges[0].Priority)
	assert.True(t, edges[1].Priority)
	assert.False(t, edges[2].Priority)
	assert.Equal(t, "AccountId", edges[1].ForeignKeyField)
}

func TestDiscoverChildrenCaches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, describeJSON("Account", "Contact:AccountId"))
	}))
	t.Cleanup(srv.Close)

	remote := config.RemoteConfig{BaseURL: srv.URL, AccessToken: "tok", APIVersion: "62.0"}
	log := logger.NewDefault()
	tm := transport.NewManager(remote, log)
	t.Cleanup(tm.Close)
	a := NewAnalyzer(bulk.NewClient(remote, config.ProcessingConfig{PollIntervalSeconds: 1, MaxPollAttempts: 10}, tm, log), log)

	_, err := a.DiscoverChildren(context.Background(), "Account")
	require.NoError(t, err)
	_, err = a.DiscoverChildren(context.Background(), "Account")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsPriority(t *testing.T) {
	assert.True(t, IsPriority("Contact"))
	assert.True(t, IsPriority("OpportunityLineItem"))
	assert.False(t, IsPriority("Account"))
	assert.False(t, IsPriority("CustomThing__c"))
}

func TestBuildTreeExpandsPriorityOnly(t *testing.T) {
	a := newTestAnalyzer(t, map[string]string{
		"Account": describeJSON("Account", "Contact:AccountId", "CustomThing__c:Account__c"),
		"Contact": describeJSON("Contact", "Case:ContactId"),
		"Case":    describeJSON("Case", "CaseComment:ParentId"),
	})

	tree, err := a.BuildTree(context.Background(), "Account", 2)
	require.NoError(t, err)

	require.Len(t, tree.Children, 2)
	contact := tree.Children[0]
	assert.Equal(t, "Contact", contact.Entity)
	require.Len(t, contact.Children, 1)
	assert.Equal(t, "Case", contact.Children[0].Entity)
	// Depth bound: Case's own children are not expanded.
	assert.Empty(t, contact.Children[0].Children)

	// Non-priority child stays a leaf even within the depth bound.
	custom := tree.Children[1]
	assert.Equal(t, "CustomThing__c", custom.Entity)
	assert.Empty(t, custom.Children)

	assert.Equal(t, 4, tree.CountNodes())
}

func TestBuildTreeSkipsEntityAlreadyOnPath(t *testing.T) {
	a := newTestAnalyzer(t, map[string]string{
		"Account": describeJSON("Account", "Contact:AccountId"),
		"Contact": describeJSON("Contact", "Account:PrimaryContactId", "Case:ContactId"),
	})

	tree, err := a.BuildTree(context.Background(), "Account", 3)
	require.NoError(t, err)

	contact := tree.Children[0]
	for _, c := range contact.Children {
		assert.NotEqual(t, "Account", c.Entity)
	}
}

func TestRenderTree(t *testing.T) {
	a := newTestAnalyzer(t, map[string]string{
		"Account": describeJSON("Account", "Contact:AccountId", "Case:AccountId"),
	})

	tree, err := a.BuildTree(context.Background(), "Account", 1)
	require.NoError(t, err)

	out := tree.Render()
	assert.Contains(t, out, "Account")
	assert.Contains(t, out, "├── ")
	assert.Contains(t, out, "└── ")
	assert.Contains(t, out, "(via AccountId)")
}
