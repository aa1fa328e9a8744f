// Package store persists meshes, node fields and domain scalars
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/phtab/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store is closed")
)

/*
MeshStore is the persistence of a table: named meshes with their node coordinates, connectivity and
node or cell fields, plus domain scalars and a free text header.
Field names are matched after types.NormalizeName.
Read-back reproduces exactly what was written.
*/
type MeshStore interface {
	Close() error

	WriteHeader(header string) error
	ReadHeader() (string, error)
	WriteScalar(name string, v float64) error
	ReadScalar(name string) (float64, error)

	// WriteNodes stores one coordinate array per axis: p for a curve, p and h for the ph mesh
	WriteNodes(mesh string, coords ...[]float64) error
	ReadNodes(mesh string) ([][]float64, error)
	Meshes() []string

	WriteField(mesh, name string, values []float64) error
	ReadField(mesh, name string) ([]float64, error)
	Fields(mesh string) []string
	WriteIntField(mesh, name string, values []int32) error
	ReadIntField(mesh, name string) ([]int32, error)

	// WritePolygons stores a polygon table: the vertices of polygon k are corners[offsets[k]:offsets[k+1]]
	WritePolygons(mesh string, corners, offsets []int) error
	ReadPolygons(mesh string) (corners, offsets []int, err error)
	WriteSegments(mesh string, segments [][2]int) error
	ReadSegments(mesh string) ([][2]int, error)
}

type meshData struct {
	Coords    [][]float64
	Fields    map[string][]float64
	IntFields map[string][]int32
	Corners   []int
	Offsets   []int
	Segments  [][2]int
}

func newMeshData() *meshData {
	return &meshData{
		Fields:    make(map[string][]float64),
		IntFields: make(map[string][]int32),
	}
}

// Memory is a MeshStore held in process
type Memory struct {
	header  string
	scalars map[string]float64
	meshes  map[string]*meshData
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		scalars: make(map[string]float64),
		meshes:  make(map[string]*meshData),
	}
}

func (s *Memory) Close() error {
	s.closed = true
	return nil
}

func (s *Memory) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Memory) mesh(name string, create bool) (md *meshData, err error) {
	if err = s.check(); err != nil {
		return
	}
	var ok bool
	if md, ok = s.meshes[name]; !ok {
		if !create {
			return nil, fmt.Errorf("mesh %q: %w", name, ErrNotFound)
		}
		md = newMeshData()
		s.meshes[name] = md
	}
	return
}

func (s *Memory) WriteHeader(header string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.header = header
	return nil
}

func (s *Memory) ReadHeader() (string, error) {
	return s.header, s.check()
}

func (s *Memory) WriteScalar(name string, v float64) error {
	if err := s.check(); err != nil {
		return err
	}
	s.scalars[name] = v
	return nil
}

func (s *Memory) ReadScalar(name string) (v float64, err error) {
	if err = s.check(); err != nil {
		return
	}
	var ok bool
	if v, ok = s.scalars[name]; !ok {
		err = fmt.Errorf("scalar %q: %w", name, ErrNotFound)
	}
	return
}

func (s *Memory) scalarNames() (names []string) {
	for name := range s.scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (s *Memory) WriteNodes(mesh string, coords ...[]float64) error {
	if len(coords) == 0 || len(coords) > 2 {
		return fmt.Errorf("%w: mesh %q needs 1 or 2 coordinate arrays, have %d", types.ErrConfiguration, mesh, len(coords))
	}
	for _, c := range coords[1:] {
		if len(c) != len(coords[0]) {
			return fmt.Errorf("%w: mesh %q coordinate arrays differ in length", types.ErrConfiguration, mesh)
		}
	}
	md, err := s.mesh(mesh, true)
	if err != nil {
		return err
	}
	md.Coords = make([][]float64, len(coords))
	for i, c := range coords {
		md.Coords[i] = append([]float64{}, c...)
	}
	return nil
}

func (s *Memory) ReadNodes(mesh string) (coords [][]float64, err error) {
	var md *meshData
	if md, err = s.mesh(mesh, false); err != nil {
		return
	}
	for _, c := range md.Coords {
		coords = append(coords, append([]float64{}, c...))
	}
	return
}

func (s *Memory) Meshes() (names []string) {
	for name := range s.meshes {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (s *Memory) WriteField(mesh, name string, values []float64) error {
	md, err := s.mesh(mesh, true)
	if err != nil {
		return err
	}
	md.Fields[types.NormalizeName(name)] = append([]float64{}, values...)
	return nil
}

func (s *Memory) ReadField(mesh, name string) (values []float64, err error) {
	var md *meshData
	if md, err = s.mesh(mesh, false); err != nil {
		return
	}
	f, ok := md.Fields[types.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q in mesh %q", types.ErrPropertyNotFound, name, mesh)
	}
	return append([]float64{}, f...), nil
}

func (s *Memory) Fields(mesh string) (names []string) {
	md, err := s.mesh(mesh, false)
	if err != nil {
		return
	}
	for name := range md.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (s *Memory) intFieldNames(mesh string) (names []string) {
	md := s.meshes[mesh]
	for name := range md.IntFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (s *Memory) WriteIntField(mesh, name string, values []int32) error {
	md, err := s.mesh(mesh, true)
	if err != nil {
		return err
	}
	md.IntFields[types.NormalizeName(name)] = append([]int32{}, values...)
	return nil
}

func (s *Memory) ReadIntField(mesh, name string) (values []int32, err error) {
	var md *meshData
	if md, err = s.mesh(mesh, false); err != nil {
		return
	}
	f, ok := md.IntFields[types.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q in mesh %q", types.ErrPropertyNotFound, name, mesh)
	}
	return append([]int32{}, f...), nil
}

func (s *Memory) WritePolygons(mesh string, corners, offsets []int) error {
	if len(offsets) == 0 || offsets[0] != 0 || offsets[len(offsets)-1] != len(corners) {
		return fmt.Errorf("%w: polygon offsets of mesh %q must run from 0 to %d", types.ErrConfiguration, mesh, len(corners))
	}
	md, err := s.mesh(mesh, true)
	if err != nil {
		return err
	}
	md.Corners = append([]int{}, corners...)
	md.Offsets = append([]int{}, offsets...)
	return nil
}

func (s *Memory) ReadPolygons(mesh string) (corners, offsets []int, err error) {
	var md *meshData
	if md, err = s.mesh(mesh, false); err != nil {
		return
	}
	if md.Offsets == nil {
		return nil, nil, fmt.Errorf("polygons of mesh %q: %w", mesh, ErrNotFound)
	}
	return append([]int{}, md.Corners...), append([]int{}, md.Offsets...), nil
}

func (s *Memory) WriteSegments(mesh string, segments [][2]int) error {
	md, err := s.mesh(mesh, true)
	if err != nil {
		return err
	}
	md.Segments = append([][2]int{}, segments...)
	return nil
}

func (s *Memory) ReadSegments(mesh string) (segments [][2]int, err error) {
	var md *meshData
	if md, err = s.mesh(mesh, false); err != nil {
		return
	}
	if md.Segments == nil {
		return nil, fmt.Errorf("segments of mesh %q: %w", mesh, ErrNotFound)
	}
	return append([][2]int{}, md.Segments...), nil
}
