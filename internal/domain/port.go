package domain

// PortType describes the kind of object a port accepts or produces.
type PortType struct {
	Name     string `json:"name" yaml:"name"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

var (
	PortTypeAny   = PortType{Name: "any"}
	PortTypeTable = PortType{Name: "table"}
	PortTypeModel = PortType{Name: "model"}
)

// Accepts reports whether a port of type t can be fed from a port of type src.
func (t PortType) Accepts(src PortType) bool {
	return t.Name == PortTypeAny.Name || t.Name == src.Name
}

func (t PortType) AsOptional() PortType {
	t.Optional = true
	return t
}

func (t PortType) String() string {
	if t.Optional {
		return t.Name + "?"
	}
	return t.Name
}

// PortObjectSpec is the metadata a port advertises before execution.
type PortObjectSpec interface {
	PortType() PortType
}

// PortObject is the computed result a port carries after execution.
type PortObject interface {
	PortType() PortType
	Spec() PortObjectSpec
}

// Spec is a general purpose PortObjectSpec for tabular and model ports.
type Spec struct {
	Type       PortType          `json:"type"`
	Columns    []string          `json:"columns,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (s *Spec) PortType() PortType {
	return s.Type
}

// Table is a general purpose PortObject holding rows of values.
type Table struct {
	TableSpec *Spec   `json:"spec"`
	Rows      [][]any `json:"rows"`
}

func (t *Table) PortType() PortType {
	if t.TableSpec == nil {
		return PortTypeTable
	}
	return t.TableSpec.Type
}

func (t *Table) Spec() PortObjectSpec {
	if t.TableSpec == nil {
		return nil
	}
	return t.TableSpec
}

func (t *Table) RowCount() int {
	return len(t.Rows)
}
