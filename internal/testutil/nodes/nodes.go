// Package nodes provides small node models used across the test suites.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
	json "github.com/eleven-am/loom/internal/xjson"
)

const (
	SourceFactory  = "test.source"
	DoubleFactory  = "test.double"
	JoinFactory    = "test.join"
	CollectFactory = "test.collect"
	FailFactory    = "test.fail"
	BlockFactory   = "test.block"
	SplitFactory   = "test.split"
)

var ErrFailingNode = errors.New("failing node always fails")

// Factories returns a factory for every model in this package.
func Factories() []ports.NodeFactory {
	return []ports.NodeFactory{
		ports.NodeFactoryFunc{FactoryName: SourceFactory, New: func() ports.NodeModel { return NewSource(3) }},
		ports.NodeFactoryFunc{FactoryName: DoubleFactory, New: func() ports.NodeModel { return &Double{} }},
		ports.NodeFactoryFunc{FactoryName: JoinFactory, New: func() ports.NodeModel { return &Join{} }},
		ports.NodeFactoryFunc{FactoryName: CollectFactory, New: func() ports.NodeModel { return &Collect{} }},
		ports.NodeFactoryFunc{FactoryName: FailFactory, New: func() ports.NodeModel { return &Fail{} }},
		ports.NodeFactoryFunc{FactoryName: BlockFactory, New: func() ports.NodeModel { return NewBlock() }},
		ports.NodeFactoryFunc{FactoryName: SplitFactory, New: func() ports.NodeModel { return &Split{} }},
	}
}

func tableSpec(column string) *domain.Spec {
	return &domain.Spec{Type: domain.PortTypeTable, Columns: []string{column}}
}

// SourceSettings configure a Source.
type SourceSettings struct {
	Rows   int    `json:"rows"`
	Column string `json:"column"`
}

// Source emits a single column table holding 1..Rows.
type Source struct {
	mu       sync.Mutex
	settings SourceSettings
	runs     atomic.Int32
}

func NewSource(rows int) *Source {
	return &Source{settings: SourceSettings{Rows: rows, Column: "value"}}
}

func (s *Source) Runs() int { return int(s.runs.Load()) }

func (s *Source) InPortTypes() []domain.PortType  { return nil }
func (s *Source) OutPortTypes() []domain.PortType { return []domain.PortType{domain.PortTypeTable} }

func (s *Source) Configure([]domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Rows < 0 {
		return nil, fmt.Errorf("rows must not be negative, got %d", s.settings.Rows)
	}
	return []domain.PortObjectSpec{tableSpec(s.settings.Column)}, nil
}

func (s *Source) Execute(ctx context.Context, _ []domain.PortObject) ([]domain.PortObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.runs.Add(1)

	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()

	table := &domain.Table{TableSpec: tableSpec(settings.Column)}
	for i := 1; i <= settings.Rows; i++ {
		table.Rows = append(table.Rows, []any{float64(i)})
	}
	return []domain.PortObject{table}, nil
}

func (s *Source) Settings() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.settings)
}

func (s *Source) LoadSettings(settings json.RawMessage) error {
	var parsed SourceSettings
	if err := json.UnmarshalStrict(settings, &parsed); err != nil {
		return fmt.Errorf("invalid source settings: %w", err)
	}
	s.mu.Lock()
	s.settings = parsed
	s.mu.Unlock()
	return nil
}

// Double multiplies every numeric cell by two.
type Double struct {
	runs atomic.Int32
}

func (d *Double) Runs() int { return int(d.runs.Load()) }

func (d *Double) InPortTypes() []domain.PortType  { return []domain.PortType{domain.PortTypeTable} }
func (d *Double) OutPortTypes() []domain.PortType { return []domain.PortType{domain.PortTypeTable} }

func (d *Double) Configure(in []domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	return []domain.PortObjectSpec{in[0]}, nil
}

func (d *Double) Execute(ctx context.Context, in []domain.PortObject) ([]domain.PortObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.runs.Add(1)

	src, ok := in[0].(*domain.Table)
	if !ok {
		return nil, fmt.Errorf("expected a table, got %T", in[0])
	}
	out := &domain.Table{TableSpec: src.TableSpec}
	for _, row := range src.Rows {
		doubled := make([]any, len(row))
		for i, cell := range row {
			if v, ok := cell.(float64); ok {
				doubled[i] = v * 2
			} else {
				doubled[i] = cell
			}
		}
		out.Rows = append(out.Rows, doubled)
	}
	return []domain.PortObject{out}, nil
}

// Join appends the rows of its second input to the first. The second input
// is optional.
type Join struct{}

func (j *Join) InPortTypes() []domain.PortType {
	return []domain.PortType{domain.PortTypeTable, domain.PortTypeTable.AsOptional()}
}

func (j *Join) OutPortTypes() []domain.PortType { return []domain.PortType{domain.PortTypeTable} }

func (j *Join) Configure(in []domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	return []domain.PortObjectSpec{in[0]}, nil
}

func (j *Join) Execute(_ context.Context, in []domain.PortObject) ([]domain.PortObject, error) {
	first := in[0].(*domain.Table)
	out := &domain.Table{TableSpec: first.TableSpec, Rows: append([][]any(nil), first.Rows...)}
	if second, ok := in[1].(*domain.Table); ok {
		out.Rows = append(out.Rows, second.Rows...)
	}
	return []domain.PortObject{out}, nil
}

// Split sends rows at even positions to its first output and the rest to
// its second.
type Split struct{}

func (s *Split) InPortTypes() []domain.PortType { return []domain.PortType{domain.PortTypeTable} }

func (s *Split) OutPortTypes() []domain.PortType {
	return []domain.PortType{domain.PortTypeTable, domain.PortTypeTable}
}

func (s *Split) Configure(in []domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	return []domain.PortObjectSpec{in[0], in[0]}, nil
}

func (s *Split) Execute(_ context.Context, in []domain.PortObject) ([]domain.PortObject, error) {
	src, ok := in[0].(*domain.Table)
	if !ok {
		return nil, fmt.Errorf("expected a table, got %T", in[0])
	}
	even := &domain.Table{TableSpec: src.TableSpec}
	odd := &domain.Table{TableSpec: src.TableSpec}
	for i, row := range src.Rows {
		if i%2 == 0 {
			even.Rows = append(even.Rows, row)
		} else {
			odd.Rows = append(odd.Rows, row)
		}
	}
	return []domain.PortObject{even, odd}, nil
}

// Collect is a sink keeping the last table it received.
type Collect struct {
	mu   sync.Mutex
	last *domain.Table
}

func (c *Collect) Last() *domain.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Collect) InPortTypes() []domain.PortType  { return []domain.PortType{domain.PortTypeTable} }
func (c *Collect) OutPortTypes() []domain.PortType { return nil }

func (c *Collect) Configure([]domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	return nil, nil
}

func (c *Collect) Execute(_ context.Context, in []domain.PortObject) ([]domain.PortObject, error) {
	c.mu.Lock()
	c.last, _ = in[0].(*domain.Table)
	c.mu.Unlock()
	return nil, nil
}

func (c *Collect) Reset() {
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}

// Fail passes configuration and fails every execution.
type Fail struct{}

func (f *Fail) InPortTypes() []domain.PortType  { return []domain.PortType{domain.PortTypeTable} }
func (f *Fail) OutPortTypes() []domain.PortType { return []domain.PortType{domain.PortTypeTable} }

func (f *Fail) Configure(in []domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	return []domain.PortObjectSpec{in[0]}, nil
}

func (f *Fail) Execute(context.Context, []domain.PortObject) ([]domain.PortObject, error) {
	return nil, ErrFailingNode
}

// Block is a source that runs until released or cancelled.
type Block struct {
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	startOne sync.Once
}

func NewBlock() *Block {
	return &Block{started: make(chan struct{}), release: make(chan struct{})}
}

// Started is closed once the first execution has begun.
func (b *Block) Started() <-chan struct{} { return b.started }

func (b *Block) Release() {
	b.once.Do(func() { close(b.release) })
}

func (b *Block) InPortTypes() []domain.PortType  { return nil }
func (b *Block) OutPortTypes() []domain.PortType { return []domain.PortType{domain.PortTypeTable} }

func (b *Block) Configure([]domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	return []domain.PortObjectSpec{tableSpec("value")}, nil
}

func (b *Block) Execute(ctx context.Context, _ []domain.PortObject) ([]domain.PortObject, error) {
	b.startOne.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return []domain.PortObject{&domain.Table{TableSpec: tableSpec("value"), Rows: [][]any{{float64(42)}}}}, nil
	}
}

// Values returns the first column of t.
func Values(t *domain.Table) []float64 {
	if t == nil {
		return nil
	}
	out := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if v, ok := row[0].(float64); ok {
			out = append(out, v)
		}
	}
	return out
}
