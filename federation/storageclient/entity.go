package storageclient

// Entity is a generic row in the object store's table service, modelled
// after Azure Table Storage: a partition/row key pair, a bag of string-typed
// properties, and an opaque etag used for optimistic concurrency. Every
// entity type in the federation and cascade domains (federations, pools,
// job-location, sequence, blocked-action, DHT roster, services,
// torrent-info) is represented as one of these with a fixed property set.
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]string
	ETag         string
}

// Get returns the string value of a property, or "" if unset.
func (e *Entity) Get(key string) string {
	if e.Properties == nil {
		return ""
	}
	return e.Properties[key]
}

// Set assigns a property value, initializing the property map if needed.
func (e *Entity) Set(key, value string) {
	if e.Properties == nil {
		e.Properties = make(map[string]string)
	}
	e.Properties[key] = value
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	c := &Entity{
		PartitionKey: e.PartitionKey,
		RowKey:       e.RowKey,
		ETag:         e.ETag,
		Properties:   make(map[string]string, len(e.Properties)),
	}
	for k, v := range e.Properties {
		c.Properties[k] = v
	}
	return c
}
