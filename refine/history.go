package refine

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Iteration is one quality criterion measured at one refinement step
type Iteration struct {
	Iteration        int
	Target, Property string
	Strategy         string
	Level            int
	Nodes, Cells     int
	Max, Mean        float64
	Failing          int
	Converged        bool
}

type History []Iteration

var historyColumns = []string{
	"iteration", "target", "property", "strategy", "level", "nodes", "cells", "max", "mean", "failing", "converged",
}

// WriteCSV writes one row per iteration and criterion, with a header row
func (h History) WriteCSV(w io.Writer) (err error) {
	cw := csv.NewWriter(w)
	if err = cw.Write(historyColumns); err != nil {
		return
	}
	for _, it := range h {
		rec := []string{
			strconv.Itoa(it.Iteration), it.Target, it.Property, it.Strategy,
			strconv.Itoa(it.Level), strconv.Itoa(it.Nodes), strconv.Itoa(it.Cells),
			strconv.FormatFloat(it.Max, 'e', -1, 64), strconv.FormatFloat(it.Mean, 'e', -1, 64),
			strconv.Itoa(it.Failing), strconv.FormatBool(it.Converged),
		}
		if err = cw.Write(rec); err != nil {
			return
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadHistory parses what WriteCSV wrote
func ReadHistory(r io.Reader) (h History, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(historyColumns)
	var records [][]string
	if records, err = cr.ReadAll(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		var (
			it   = Iteration{Target: rec[1], Property: rec[2], Strategy: rec[3]}
			ints = []*int{&it.Iteration, nil, nil, nil, &it.Level, &it.Nodes, &it.Cells, nil, nil, &it.Failing}
		)
		for c, dst := range ints {
			if dst == nil {
				continue
			}
			if *dst, err = strconv.Atoi(rec[c]); err != nil {
				return nil, fmt.Errorf("history line %d, %s: %w", i+1, historyColumns[c], err)
			}
		}
		if it.Max, err = strconv.ParseFloat(rec[7], 64); err != nil {
			return nil, fmt.Errorf("history line %d, max: %w", i+1, err)
		}
		if it.Mean, err = strconv.ParseFloat(rec[8], 64); err != nil {
			return nil, fmt.Errorf("history line %d, mean: %w", i+1, err)
		}
		if it.Converged, err = strconv.ParseBool(rec[10]); err != nil {
			return nil, fmt.Errorf("history line %d, converged: %w", i+1, err)
		}
		h = append(h, it)
	}
	return
}

// Final returns the last row of each target and property
func (h History) Final() (last History) {
	idx := make(map[string]int)
	for _, it := range h {
		key := it.Target + "/" + it.Property
		if k, ok := idx[key]; ok {
			last[k] = it
			continue
		}
		idx[key] = len(last)
		last = append(last, it)
	}
	return
}
