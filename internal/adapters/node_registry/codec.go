package node_registry

import (
	"fmt"

	"github.com/eleven-am/loom/internal/domain"
	json "github.com/eleven-am/loom/internal/xjson"
)

// JSONCodec persists port objects of one concrete type as JSON.
type JSONCodec[T domain.PortObject] struct {
	portType domain.PortType
	newValue func() T
}

func NewJSONCodec[T domain.PortObject](portType domain.PortType, newValue func() T) *JSONCodec[T] {
	return &JSONCodec[T]{portType: portType, newValue: newValue}
}

func NewTableCodec() *JSONCodec[*domain.Table] {
	return NewJSONCodec(domain.PortTypeTable, func() *domain.Table { return &domain.Table{} })
}

func (c *JSONCodec[T]) PortType() domain.PortType { return c.portType }

func (c *JSONCodec[T]) Encode(obj domain.PortObject) (json.RawMessage, error) {
	typed, ok := obj.(T)
	if !ok {
		return nil, fmt.Errorf("codec for %s cannot encode %T", c.portType, obj)
	}
	return json.Marshal(typed)
}

func (c *JSONCodec[T]) Decode(data json.RawMessage) (domain.PortObject, error) {
	value := c.newValue()
	if err := json.Unmarshal(data, value); err != nil {
		return nil, fmt.Errorf("failed to decode %s object: %w", c.portType, err)
	}
	return value, nil
}
