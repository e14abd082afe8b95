package graph

import "testing"

func TestSnapshotCopiesNodesAndEdges(t *testing.T) {
	g := New(3)

	n0 := NewNode(0, -1)
	n0.InstrAddr = 0x1000
	g.InsertNode(n0)

	n1 := NewNode(1, 0)
	n1.InstrAddr = 0x1004
	n1.ExecCount = 5
	g.InsertNode(n1)

	g.AddEdge(0, 1, ClassNew)
	g.Terminate(1)

	snap := g.Snapshot()

	if snap.ThreadID != 3 {
		t.Fatalf("ThreadID = %d, want 3", snap.ThreadID)
	}
	if len(snap.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(snap.Nodes))
	}
	if len(snap.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(snap.Edges))
	}
	if snap.Edges[0].Class != "New" {
		t.Fatalf("edge class = %q, want New", snap.Edges[0].Class)
	}
	if !snap.Terminated || snap.FinalNodeID != 1 {
		t.Fatalf("expected terminated at node 1, got terminated=%v final=%d", snap.Terminated, snap.FinalNodeID)
	}
	if snap.Nodes[1].ExecCount != 5 {
		t.Fatalf("node 1 exec count = %d, want 5", snap.Nodes[1].ExecCount)
	}
	if len(snap.Nodes[0].Outgoing) != 1 || snap.Nodes[0].Outgoing[0] != 1 {
		t.Fatalf("node 0 outgoing = %v, want [1]", snap.Nodes[0].Outgoing)
	}
}
