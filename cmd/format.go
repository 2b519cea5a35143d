package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/contractor-pipeline/internal/ingest"
	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(header)
	t.SetStyle(table.StyleRounded)
	return t
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatImportResults(out io.Writer, results []*ingest.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "No files imported.")
		return
	}
	t := newTable(out, table.Row{"IMPORT", "FILE", "CREATED", "MERGED", "SKIPPED", "MULTI", "UNICORNS", "DURATION"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.FileImport.ID,
			r.FileImport.FileName,
			r.Stats.Created,
			r.Stats.Updated,
			r.Stats.Unchanged,
			r.Run.MultiLicenseFound,
			r.Run.UnicornsFound,
			r.Run.Duration.Round(time.Millisecond).String(),
		})
	}
	t.Render()
}

func formatStats(out io.Writer, s *pipelinedb.Stats) {
	if s.Empty() {
		_, _ = fmt.Fprintln(out, "No contractors found.")
		return
	}
	scope := "all states"
	if s.State != "" {
		scope = s.State
	}
	t := newTable(out, table.Row{"METRIC", scope})
	t.AppendRows([]table.Row{
		{"Contractors", s.TotalContractors},
		{"With email", s.WithEmail},
		{"With phone", s.WithPhone},
		{"Multi-license (2+)", s.MultiLicense},
		{"Unicorns (3+)", s.Unicorns},
		{"Multi-license with email", s.MultiLicenseWithEmail},
		{"OEM dealers", s.OEMDealers},
		{"In both sources", s.BothSources},
		{"Dedup matches", s.DedupMatches},
	})
	t.AppendSeparator()

	cats := make([]string, 0, len(s.Categories))
	for c := range s.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		t.AppendRow(table.Row{"  " + c, s.Categories[c]})
	}
	t.Render()
}

func formatRuns(out io.Writer, runs []model.PipelineRun) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs found.")
		return
	}
	t := newTable(out, table.Row{"ID", "SOURCE", "STATUS", "INPUT", "NEW", "MERGED", "MULTI", "UNICORNS", "STARTED", "DURATION"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.Source,
			r.Status,
			r.InputCount,
			r.NewCount,
			r.MergedCount,
			r.MultiLicenseFound,
			r.UnicornsFound,
			r.StartedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.1fs", r.DurationSeconds),
		})
	}
	t.Render()
}

func formatImports(out io.Writer, imports []model.FileImport) {
	if len(imports) == 0 {
		_, _ = fmt.Fprintln(out, "No imports found.")
		return
	}
	t := newTable(out, table.Row{"ID", "FILE", "SOURCE", "STATUS", "CREATED", "UPDATED", "UNCHANGED", "STARTED", "ERROR"})
	for _, fi := range imports {
		t.AppendRow(table.Row{
			fi.ID,
			truncate(fi.FileName, 40),
			fi.SourceType,
			fi.Status,
			fi.RecordsCreated,
			fi.RecordsUpdated,
			fi.RecordsUnchanged,
			fi.StartedAt.Format("2006-01-02 15:04"),
			truncate(fi.ErrorMessage, 40),
		})
	}
	t.Render()
}

func formatHistory(out io.Writer, entries []model.HistoryEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No history found.")
		return
	}
	t := newTable(out, table.Row{"ID", "ACTION", "SOURCE", "IMPORT", "BY", "AT", "CHANGES"})
	for _, e := range entries {
		imp := ""
		if e.FileImportID != nil {
			imp = fmt.Sprint(*e.FileImportID)
		}
		t.AppendRow(table.Row{
			e.ID,
			e.Action,
			e.Source,
			imp,
			e.ChangedBy,
			e.ChangedAt.Format("2006-01-02 15:04:05"),
			describeChange(e),
		})
	}
	t.Render()
}

// describeChange lists changed fields as "field: old -> new".
func describeChange(e model.HistoryEntry) string {
	if e.Corrupt {
		return "(unparseable)"
	}
	keys := make(map[string]struct{}, len(e.NewValues)+len(e.OldValues))
	for k := range e.OldValues {
		keys[k] = struct{}{}
	}
	for k := range e.NewValues {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var parts []string
	for _, k := range names {
		oldV, hadOld := e.OldValues[k]
		newV, hasNew := e.NewValues[k]
		switch {
		case hadOld && hasNew:
			if fmt.Sprint(oldV) == fmt.Sprint(newV) {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %v -> %v", k, oldV, newV))
		case hasNew:
			parts = append(parts, fmt.Sprintf("%s: %v", k, newV))
		default:
			parts = append(parts, fmt.Sprintf("%s: %v -> ", k, oldV))
		}
	}
	return truncate(strings.Join(parts, "; "), 80)
}

func formatLock(out io.Writer, info *model.LockInfo) {
	if info == nil {
		_, _ = fmt.Fprintln(out, "Import lock is free.")
		return
	}
	t := newTable(out, table.Row{"HOLDER", "REASON", "ACQUIRED", "AGE"})
	t.AppendRow(table.Row{
		info.Holder,
		info.Reason,
		info.AcquiredAt.Format("2006-01-02 15:04:05"),
		fmt.Sprintf("%.1fm", info.AgeMinutes),
	})
	t.Render()
}

func formatExports(out io.Writer, results []pipelinedb.ExportResult) {
	t := newTable(out, table.Row{"FORMAT", "PATH", "RECORDS"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Format, r.Path, r.Count})
	}
	t.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
