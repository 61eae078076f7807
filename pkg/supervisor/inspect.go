package supervisor

import (
	"slices"

	"github.com/aretw0/manifold/pkg/domain"
)

// Node returns a snapshot of the node with the given id.
func (s *Supervisor) Node(id domain.NodeID) (domain.NodeInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return domain.NodeInfo{}, false
	}
	return n.info(), true
}

// Master returns a snapshot of the master slot.
func (s *Supervisor) Master() domain.NodeInfo {
	info, _ := s.Node(domain.RootID)
	return info
}

// Nodes returns snapshots of every node still in the tree, ordered by id.
func (s *Supervisor) Nodes() []domain.NodeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.NodeInfo, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.info())
	}
	slices.SortFunc(out, func(a, b domain.NodeInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Tree returns the nested view of the tree rooted at the master.
func (s *Supervisor) Tree() domain.TreeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treeLocked(domain.RootID)
}

// Live returns the number of running processes the supervisor is tracking.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Supervisor) treeLocked(id domain.NodeID) domain.TreeInfo {
	n := s.nodes[id]
	t := domain.TreeInfo{NodeInfo: n.info()}
	for _, c := range n.children {
		if _, ok := s.nodes[c]; ok {
			t.Stages = append(t.Stages, s.treeLocked(c))
		}
	}
	return t
}

func (n *node) info() domain.NodeInfo {
	return domain.NodeInfo{
		ID:        n.id,
		Name:      n.name,
		Parent:    n.parent,
		Origin:    n.origin,
		PID:       n.pid,
		Command:   n.command,
		Args:      slices.Clone(n.args),
		KeepAlive: n.keepAlive,
		Restarts:  n.restarts,
		State:     n.state,
		Children:  slices.Clone(n.children),
	}
}
