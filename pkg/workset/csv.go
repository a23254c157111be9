package workset

import (
	"encoding/csv"
	"io"
	"strings"

	"batch-delete/pkg/model"
)

// ImportSerials reads one serial per line. Serials are trimmed and
// upper-cased, blank lines and repeats are skipped. Only the first column
// is used, so a failure export can be imported again; its header is
// skipped.
func ImportSerials(r io.Reader) ([]*model.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	seen := map[string]bool{}
	var out []*model.Item
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		serial := strings.ToUpper(strings.TrimSpace(rec[0]))
		header := first && serial == "SERIAL"
		first = false
		if serial == "" || header || seen[serial] {
			continue
		}
		seen[serial] = true
		out = append(out, &model.Item{ID: serial, Source: model.SourceCSV, Selected: true})
	}
	return out, nil
}

// WriteFailures writes failed items as serial,hostName,uuid,error and
// returns how many were written.
func WriteFailures(w io.Writer, items []*model.Item) (int, error) {
	return writeCSV(w, []string{"serial", "hostName", "uuid", "error"}, items, model.StateFailed,
		func(it *model.Item) []string { return []string{it.ID, it.HostName, it.RemoteUUID, it.LastError} })
}

// WriteSuccesses writes succeeded items as serial,hostName,uuid.
func WriteSuccesses(w io.Writer, items []*model.Item) (int, error) {
	return writeCSV(w, []string{"serial", "hostName", "uuid"}, items, model.StateSucceeded,
		func(it *model.Item) []string { return []string{it.ID, it.HostName, it.RemoteUUID} })
}

func writeCSV(w io.Writer, header []string, items []*model.Item, kind model.StateKind, row func(*model.Item) []string) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if it.State.Kind != kind {
			continue
		}
		if err := cw.Write(row(it)); err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	return n, cw.Error()
}
