package store

import (
	"github.com/notargets/phtab/mesh"
	"github.com/notargets/phtab/types"
)

const (
	// OwnerField is the integer field mapping each stored polygon to the mesh cell it came from
	OwnerField = "owner"
	// StatusSuffix names the integer node field holding a property's evaluation status
	StatusSuffix = "_status"
	// CellStatusSuffix names the integer field holding the worst node status of each polygon or segment
	CellStatusSuffix = "_cellstatus"
)

// WritePHMesh stores the ph mesh nodes and its effective quads as polygons
func WritePHMesh(s MeshStore, name string, m *mesh.PHMesh) (err error) {
	P, H := m.Coordinates()
	if err = s.WriteNodes(name, P, H); err != nil {
		return
	}
	polys, owners := m.Polygons()
	var (
		corners = make([]int, 0, 4*len(polys))
		offsets = make([]int, 1, len(polys)+1)
		own     = make([]int32, len(owners))
	)
	for k, poly := range polys {
		corners = append(corners, poly...)
		offsets = append(offsets, len(corners))
		own[k] = int32(owners[k])
	}
	if err = s.WritePolygons(name, corners, offsets); err != nil {
		return
	}
	return s.WriteIntField(name, OwnerField, own)
}

// WriteCurve stores a p curve and its segments
func WriteCurve(s MeshStore, name string, c *mesh.Curve) (err error) {
	if err = s.WriteNodes(name, c.Nodes); err != nil {
		return
	}
	return s.WriteSegments(name, c.Segments)
}

// WriteStatus stores the node statuses of a property and the worst status of each polygon or segment
func WriteStatus(s MeshStore, name, prop string, node []types.Status, cells [][]int) (err error) {
	codes := make([]int32, len(node))
	for i, st := range node {
		codes[i] = int32(st)
	}
	if err = s.WriteIntField(name, prop+StatusSuffix, codes); err != nil {
		return
	}
	worst := make([]int32, len(cells))
	for k, vs := range cells {
		var w types.Status
		for _, v := range vs {
			w = types.Worst(w, node[v])
		}
		worst[k] = int32(w)
	}
	return s.WriteIntField(name, prop+CellStatusSuffix, worst)
}
