package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/cdf"
)

/*
CDF is a MeshStore backed by a NetCDF classic file.
NetCDF defines every dimension and variable before any data is written, so a store opened with Create
buffers in memory and writes the file on Close. A store opened with Open reads the whole file up front and
never writes it back.

File layout, for a mesh M:

	M__p, M__h          node coordinates
	M__f__NAME          float node fields
	M__i__NAME          integer fields
	M__corners, M__offsets, M__segments

Each variable has its own dimension VAR_n. Global attributes carry the header, the scalars (scalar_NAME) and
the lists of meshes and fields, so empty arrays survive the round trip.
*/
type CDF struct {
	*Memory
	file *os.File
}

const listSep = ","

// Create opens path for writing, truncating any previous table
func Create(path string) (c *CDF, err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return nil, fmt.Errorf("failed to create table file: %w", err)
	}
	return &CDF{Memory: NewMemory(), file: f}, nil
}

// Open reads a table written by Create
func Open(path string) (c *CDF, err error) {
	var f *os.File
	if f, err = os.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open table file: %w", err)
	}
	defer f.Close()
	var cf *cdf.File
	if cf, err = cdf.Open(f); err != nil {
		return nil, fmt.Errorf("failed to read netcdf header of %s: %w", path, err)
	}
	c = &CDF{Memory: NewMemory()}
	if err = c.load(cf); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return
}

func (c *CDF) Close() (err error) {
	if c.file == nil || c.closed {
		return c.Memory.Close()
	}
	defer func() {
		if cerr := c.file.Close(); err == nil {
			err = cerr
		}
		c.Memory.Close()
	}()
	return c.write()
}

type cdfVar struct {
	name string
	f64  []float64
	i32  []int32
}

func (v cdfVar) len() int { return len(v.f64) + len(v.i32) }

func toInt32(a []int) (b []int32) {
	b = make([]int32, len(a))
	for i, v := range a {
		b[i] = int32(v)
	}
	return
}

func fromInt32(a []int32) (b []int) {
	b = make([]int, len(a))
	for i, v := range a {
		b[i] = int(v)
	}
	return
}

func (c *CDF) variables() (vars []cdfVar) {
	for _, mesh := range c.Meshes() {
		md := c.meshes[mesh]
		for i, axis := range []string{"p", "h"}[:len(md.Coords)] {
			vars = append(vars, cdfVar{name: mesh + "__" + axis, f64: md.Coords[i]})
		}
		for _, name := range c.Fields(mesh) {
			vars = append(vars, cdfVar{name: mesh + "__f__" + name, f64: md.Fields[name]})
		}
		for _, name := range c.intFieldNames(mesh) {
			vars = append(vars, cdfVar{name: mesh + "__i__" + name, i32: md.IntFields[name]})
		}
		if md.Offsets != nil {
			vars = append(vars,
				cdfVar{name: mesh + "__corners", i32: toInt32(md.Corners)},
				cdfVar{name: mesh + "__offsets", i32: toInt32(md.Offsets)})
		}
		if md.Segments != nil {
			flat := make([]int, 0, 2*len(md.Segments))
			for _, s := range md.Segments {
				flat = append(flat, s[0], s[1])
			}
			vars = append(vars, cdfVar{name: mesh + "__segments", i32: toInt32(flat)})
		}
	}
	return
}

func (c *CDF) write() (err error) {
	var (
		vars    = c.variables()
		dims    []string
		lengths []int
	)
	for _, v := range vars {
		if v.len() > 0 {
			dims = append(dims, v.name+"_n")
			lengths = append(lengths, v.len())
		}
	}
	h := cdf.NewHeader(dims, lengths)
	if c.header != "" {
		h.AddAttribute("", "header", c.header)
	}
	scalars := c.scalarNames()
	if len(scalars) != 0 {
		h.AddAttribute("", "scalars", strings.Join(scalars, listSep))
		for _, name := range scalars {
			h.AddAttribute("", "scalar_"+name, []float64{c.scalars[name]})
		}
	}
	if meshes := c.Meshes(); len(meshes) != 0 {
		h.AddAttribute("", "meshes", strings.Join(meshes, listSep))
		for _, mesh := range meshes {
			md := c.meshes[mesh]
			h.AddAttribute("", mesh+"__axes", []int32{int32(len(md.Coords))})
			h.AddAttribute("", mesh+"__polygons", []int32{boolInt(md.Offsets != nil)})
			h.AddAttribute("", mesh+"__hassegments", []int32{boolInt(md.Segments != nil)})
			if names := c.Fields(mesh); len(names) != 0 {
				h.AddAttribute("", mesh+"__fields", strings.Join(names, listSep))
			}
			if names := c.intFieldNames(mesh); len(names) != 0 {
				h.AddAttribute("", mesh+"__ifields", strings.Join(names, listSep))
			}
		}
	}
	for _, v := range vars {
		if v.len() == 0 {
			continue
		}
		if v.f64 != nil {
			h.AddVariable(v.name, []string{v.name + "_n"}, []float64{0})
		} else {
			h.AddVariable(v.name, []string{v.name + "_n"}, []int32{0})
		}
	}
	h.Define()

	var cf *cdf.File
	if cf, err = cdf.Create(c.file, h); err != nil {
		return fmt.Errorf("failed to write netcdf header: %w", err)
	}
	for _, v := range vars {
		if v.len() == 0 {
			continue
		}
		w := cf.Writer(v.name, []int{0}, []int{v.len()})
		if v.f64 != nil {
			_, err = w.Write(v.f64)
		} else {
			_, err = w.Write(v.i32)
		}
		if err != nil {
			return fmt.Errorf("failed to write variable %s: %w", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(c.file)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func stringAttr(cf *cdf.File, name string) []string {
	s, ok := cf.Header.GetAttribute("", name).(string)
	if !ok || s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}

func intAttr(cf *cdf.File, name string) int32 {
	if v, ok := cf.Header.GetAttribute("", name).([]int32); ok && len(v) > 0 {
		return v[0]
	}
	return 0
}

func hasVariable(cf *cdf.File, name string) bool {
	for _, v := range cf.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

func readFloat64(cf *cdf.File, name string) (data []float64, err error) {
	data = []float64{}
	if !hasVariable(cf, name) {
		return
	}
	data = make([]float64, cf.Header.Lengths(name)[0])
	if _, err = cf.Reader(name, nil, nil).Read(data); err != nil {
		err = fmt.Errorf("failed to read variable %s: %w", name, err)
	}
	return
}

func readInt32(cf *cdf.File, name string) (data []int32, err error) {
	data = []int32{}
	if !hasVariable(cf, name) {
		return
	}
	data = make([]int32, cf.Header.Lengths(name)[0])
	if _, err = cf.Reader(name, nil, nil).Read(data); err != nil {
		err = fmt.Errorf("failed to read variable %s: %w", name, err)
	}
	return
}

func (c *CDF) load(cf *cdf.File) (err error) {
	if h, ok := cf.Header.GetAttribute("", "header").(string); ok {
		c.header = h
	}
	for _, name := range stringAttr(cf, "scalars") {
		v, ok := cf.Header.GetAttribute("", "scalar_"+name).([]float64)
		if !ok || len(v) != 1 {
			return fmt.Errorf("scalar %q: %w", name, ErrNotFound)
		}
		c.scalars[name] = v[0]
	}
	for _, mesh := range stringAttr(cf, "meshes") {
		md := newMeshData()
		c.meshes[mesh] = md
		for _, axis := range []string{"p", "h"}[:intAttr(cf, mesh+"__axes")] {
			var coord []float64
			if coord, err = readFloat64(cf, mesh+"__"+axis); err != nil {
				return
			}
			md.Coords = append(md.Coords, coord)
		}
		for _, name := range stringAttr(cf, mesh+"__fields") {
			if md.Fields[name], err = readFloat64(cf, mesh+"__f__"+name); err != nil {
				return
			}
		}
		for _, name := range stringAttr(cf, mesh+"__ifields") {
			if md.IntFields[name], err = readInt32(cf, mesh+"__i__"+name); err != nil {
				return
			}
		}
		if intAttr(cf, mesh+"__polygons") == 1 {
			var corners, offsets []int32
			if corners, err = readInt32(cf, mesh+"__corners"); err != nil {
				return
			}
			if offsets, err = readInt32(cf, mesh+"__offsets"); err != nil {
				return
			}
			md.Corners, md.Offsets = fromInt32(corners), fromInt32(offsets)
		}
		if intAttr(cf, mesh+"__hassegments") == 1 {
			var flat []int32
			if flat, err = readInt32(cf, mesh+"__segments"); err != nil {
				return
			}
			md.Segments = make([][2]int, len(flat)/2)
			for k := range md.Segments {
				md.Segments[k] = [2]int{int(flat[2*k]), int(flat[2*k+1])}
			}
		}
	}
	return
}
