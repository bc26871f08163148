package bulk

// knownUnsupported lists entity types with documented bulk API limitations:
// mandatory filters, no pagination support, or serialization restrictions.
// Exports of these are likely to be rejected or come back incomplete.
var knownUnsupported = map[string]struct{}{
	// Entities requiring specific filters
	"ActivityMetric":       {},
	"ActivityMetricRollup": {},
	"ContentDocumentLink":  {},
	"ContentFolderItem":    {},
	"ContentFolderMember":  {},
	"EventWhoRelation":     {},
	"TaskWhoRelation":      {},
	"TopicAssignment":      {},

	// Metadata entities requiring reified column filters
	"ApexTypeImplementor": {},
	"AppTabMember":        {},
	"ColorDefinition":     {},
	"FlowTestView":        {},
	"FlowVariableView":    {},
	"FlowVersionView":     {},

	// Entities that do not support pagination
	"AuraDefinitionInfo": {},
	"DataType":           {},

	// External/special entities
	"DatacloudAddress":     {},
	"DatacloudCompany":     {},
	"DatacloudContact":     {},
	"DatacloudDandBCompany": {},
	"FlexQueueItem":        {},

	// Entities with tabular serialization issues
	"EntityDefinition":   {},
	"EntityParticle":     {},
	"FieldDefinition":    {},
	"RelationshipDomain": {},
	"RelationshipInfo":   {},

	"FieldSecurityClassification": {},
	"DataStatistics":              {},
}

// knownLargeBinary lists entity types carrying large binary bodies. Their
// primary export excludes the binary field; content is fetched per record in
// a separate pass.
var knownLargeBinary = map[string]struct{}{
	"Attachment":     {},
	"ContentVersion": {},
	"Document":       {},
	"ContentBody":    {},
	"StaticResource": {},
	"EmailMessage":   {},
	"FeedItem":       {},
	"EmailTemplate":  {},
}

// IsKnownUnsupported reports whether the entity type has known bulk API
// limitations and may fail or return incomplete results.
func IsKnownUnsupported(entity string) bool {
	_, ok := knownUnsupported[entity]
	return ok
}

// IsLargeBinary reports whether the entity type carries large binary content.
func IsLargeBinary(entity string) bool {
	_, ok := knownLargeBinary[entity]
	return ok
}
