package task

import (
	"errors"
	"fmt"
	"sort"
)

// Catalog is a registry of operations keyed by name.
type Catalog struct {
	operations map[string]Operation
}

// NewCatalog indexes operations and rejects duplicate keys.
func NewCatalog(operations ...Operation) (*Catalog, error) {
	index := make(map[string]Operation, len(operations))
	for _, op := range operations {
		if op.Key == "" {
			return nil, errors.New("operation without key")
		}
		if _, exists := index[op.Key]; exists {
			return nil, fmt.Errorf("duplicate operation key: %s", op.Key)
		}
		index[op.Key] = op
	}
	return &Catalog{operations: index}, nil
}

// Lookup returns the operation registered under key.
func (c *Catalog) Lookup(key string) (Operation, error) {
	op, ok := c.operations[key]
	if !ok {
		return Operation{}, fmt.Errorf("unknown operation %q (see `serverkit list`)", key)
	}
	return op, nil
}

// Operations returns all operations sorted by key.
func (c *Catalog) Operations() []Operation {
	out := make([]Operation, 0, len(c.operations))
	for _, op := range c.operations {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
