package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// NodeID addresses a node container inside a possibly nested workflow.
// The root workflow is "0", its nodes are "0:1", "0:2", and the nodes of a
// sub-workflow held by container "0:2" are "0:2:1", "0:2:2" and so on.
type NodeID string

const RootID NodeID = "0"

// BoundarySuffix is the suffix persisted records use for the enclosing
// workflow's boundary on either end of a connection.
const BoundarySuffix = -1

func (id NodeID) String() string {
	return string(id)
}

func (id NodeID) Child(index int) NodeID {
	return NodeID(string(id) + ":" + strconv.Itoa(index))
}

func (id NodeID) Parent() (NodeID, bool) {
	i := strings.LastIndexByte(string(id), ':')
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

// Index returns the last path segment, or -1 for malformed ids.
func (id NodeID) Index() int {
	s := string(id)
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func (id NodeID) Depth() int {
	if id == "" {
		return 0
	}
	return strings.Count(string(id), ":") + 1
}

func (id NodeID) IsDescendantOf(ancestor NodeID) bool {
	return strings.HasPrefix(string(id), string(ancestor)+":")
}

func ParseNodeID(s string) (NodeID, error) {
	if s == "" {
		return "", fmt.Errorf("empty node id: %w", ErrInvalidInput)
	}
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return "", fmt.Errorf("malformed node id %q: %w", s, ErrInvalidInput)
		}
	}
	return NodeID(s), nil
}

// ConnectionID identifies a connection by its destination; an input port
// accepts at most one connection.
type ConnectionID struct {
	Dest     NodeID `json:"dest"`
	DestPort int    `json:"dest_port"`
}

func (c ConnectionID) String() string {
	return fmt.Sprintf("%s[%d]", c.Dest, c.DestPort)
}

// CompareNodeIDs orders ids segment by segment numerically, so "0:2" sorts
// before "0:10" and parents before their children.
func CompareNodeIDs(a, b NodeID) int {
	as, bs := strings.Split(string(a), ":"), strings.Split(string(b), ":")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
			continue
		}
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func SortNodeIDs(ids []NodeID) {
	slices.SortFunc(ids, CompareNodeIDs)
}
