package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/podtrace/rbatrace/internal/analysis"
	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/correlator"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/session"
)

type headerInfo struct {
	Version   string    `json:"version"`
	RingID    uint8     `json:"ring_id"`
	ClockFreq int64     `json:"clock_freq_hz"`
	Anchor    time.Time `json:"anchor"`
}

type statsInfo struct {
	Total             uint64 `json:"total"`
	Decoded           uint64 `json:"decoded"`
	Ignored           uint64 `json:"ignored"`
	Filtered          uint64 `json:"filtered"`
	Matched           uint64 `json:"matched"`
	Pending           uint64 `json:"pending"`
	Orphan            uint64 `json:"orphan_completions"`
	NegativeDurations uint64 `json:"negative_durations"`
	QueueUnderflows   uint64 `json:"queue_underflows"`
	ClockRegressions  uint64 `json:"clock_regressions"`
	Abandoned         uint64 `json:"abandoned"`
	Dropped           uint64 `json:"dropped"`
}

type responseInfo struct {
	Count      int     `json:"count"`
	Reads      int     `json:"reads"`
	Writes     int     `json:"writes"`
	AvgMS      float64 `json:"avg_ms"`
	AvgReadMS  float64 `json:"avg_read_ms"`
	AvgWriteMS float64 `json:"avg_write_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	P99MS      float64 `json:"p99_ms"`
	MaxMS      float64 `json:"max_ms"`
}

type objectInfo struct {
	Type          string         `json:"type"`
	Object        string         `json:"object"`
	Count         int            `json:"count"`
	Reads         int            `json:"reads"`
	Writes        int            `json:"writes"`
	Unmatched     int            `json:"unmatched"`
	AvgResponseMS float64        `json:"avg_response_ms"`
	MaxResponseMS float64        `json:"max_response_ms"`
	P95ResponseMS float64        `json:"p95_response_ms"`
	AvgQueueDepth float64        `json:"avg_queue_depth"`
	MaxQueueDepth int            `json:"max_queue_depth"`
	Bytes         uint64         `json:"bytes"`
	IOPS          float64        `json:"iops"`
	MBps          float64        `json:"mbps"`
	Priorities    map[string]int `json:"priorities,omitempty"`
}

type recordInfo struct {
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	Command    string    `json:"command"`
	Completion bool      `json:"completion"`
	Error      bool      `json:"error,omitempty"`
	Priority   string    `json:"priority"`
	CPU        uint8     `json:"cpu"`
	Object     string    `json:"object"`
	LBA        uint64    `json:"lba"`
	Blocks     uint64    `json:"blocks"`
	State      string    `json:"state"`
	ResponseMS float64   `json:"response_ms,omitempty"`
	QueueDepth int       `json:"queue_depth"`
}

type report struct {
	Session   string         `json:"session"`
	Path      string         `json:"path"`
	Header    headerInfo     `json:"header"`
	Stats     statsInfo      `json:"stats"`
	Anomalies map[string]int `json:"anomalies,omitempty"`
	Window    []time.Time    `json:"window,omitempty"`
	Response  responseInfo   `json:"response"`
	SortBy    string         `json:"sort_by"`
	Objects   []objectInfo   `json:"objects"`
	Records   []recordInfo   `json:"records,omitempty"`

	sess *session.Session
}

func buildReport(sess *session.Session, records []*rba.Record, measure analysis.Measurement, top int) *report {
	hdr := sess.Header()
	conv := sess.Clock()
	st := sess.Stats()

	rep := &report{
		Session: sess.ID(),
		Path:    sess.Path(),
		Header: headerInfo{
			Version:   fmt.Sprintf("%d.%d", hdr.Major, hdr.Minor),
			RingID:    hdr.RingID,
			ClockFreq: hdr.ClockFreq,
			Anchor:    conv.TickToTime(hdr.ClockAnchor),
		},
		Stats: statsInfo{
			Total:             st.Total,
			Decoded:           st.Decoded,
			Ignored:           st.Ignored,
			Filtered:          st.Filtered,
			Matched:           st.Matched,
			Pending:           st.Pending,
			Orphan:            st.Orphan,
			NegativeDurations: st.NegativeDurations,
			QueueUnderflows:   st.QueueUnderflows,
			ClockRegressions:  st.ClockRegressions,
			Abandoned:         st.Abandoned,
			Dropped:           st.Dropped,
		},
		SortBy: string(measure),
		sess:   sess,
	}

	rs := analysis.ResponseTimes(records, conv)
	rep.Response = responseInfo(rs)

	if len(records) > 0 {
		first, last := records[0].Stamp, records[0].Stamp
		for _, r := range records[1:] {
			first = min(first, r.Stamp)
			last = max(last, r.Stamp)
		}
		rep.Window = []time.Time{conv.TickToTime(first), conv.TickToTime(last)}
	}

	aggs := analysis.Top(analysis.SortBy(analysis.Aggregate(records, conv), measure), top)
	rep.Objects = make([]objectInfo, 0, len(aggs))
	for _, a := range aggs {
		obj := objectInfo{
			Type:          a.Key.Type.String(),
			Object:        a.Name,
			Count:         a.Count,
			Reads:         a.Reads,
			Writes:        a.Writes,
			Unmatched:     a.Unmatched,
			AvgResponseMS: a.AvgResponseMS,
			MaxResponseMS: a.MaxResponseMS,
			P95ResponseMS: a.P95ResponseMS,
			AvgQueueDepth: a.AvgQueueDepth,
			MaxQueueDepth: a.MaxQueueDepth,
			Bytes:         a.TotalBlocks * config.BytesPerBlock,
			IOPS:          a.IOPS,
			MBps:          a.MBps,
		}
		if len(a.Priorities) > 0 {
			obj.Priorities = make(map[string]int, len(a.Priorities))
			for p, n := range a.Priorities {
				obj.Priorities[p.String()] = n
			}
		}
		rep.Objects = append(rep.Objects, obj)
	}
	return rep
}

func (rep *report) setAnomalies(counts map[correlator.AnomalyKind]int) {
	if len(counts) == 0 {
		return
	}
	rep.Anomalies = make(map[string]int, len(counts))
	for k, n := range counts {
		rep.Anomalies[string(k)] = n
	}
}

func (rep *report) addRecords(records []*rba.Record) {
	conv := rep.sess.Clock()
	rep.Records = make([]recordInfo, 0, len(records))
	for _, r := range records {
		ri := recordInfo{
			Seq:        r.Seq,
			Time:       conv.TickToTime(r.Stamp),
			Type:       r.Type.String(),
			Command:    r.Command.String(),
			Completion: r.Completion,
			Error:      r.Error,
			Priority:   r.Priority.String(),
			CPU:        r.CPU,
			Object:     r.ObjectName,
			LBA:        r.LBA,
			Blocks:     r.Blocks,
			State:      r.State.String(),
			QueueDepth: r.QueueDepth,
		}
		if !r.Completion && r.Matched() {
			ri.ResponseMS = conv.TickDeltaToMilliseconds(r.ResponseTicks)
		}
		rep.Records = append(rep.Records, ri)
	}
}

func writeJSON(w io.Writer, rep *report, records []*rba.Record) error {
	rep.addRecords(records)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func writeText(w io.Writer, rep *report) error {
	st := rep.Stats
	fmt.Fprintf(w, "Trace:     %s\n", rep.Path)
	fmt.Fprintf(w, "Session:   %s\n", rep.Session)
	fmt.Fprintf(w, "Format:    v%s ring %d, clock %s Hz, anchor %s\n",
		rep.Header.Version, rep.Header.RingID, humanize.Comma(rep.Header.ClockFreq),
		rep.Header.Anchor.Format(time.RFC3339Nano))
	if len(rep.Window) == 2 {
		fmt.Fprintf(w, "Window:    %s .. %s\n",
			rep.Window[0].Format(time.RFC3339Nano), rep.Window[1].Format(time.RFC3339Nano))
	}
	fmt.Fprintf(w, "Records:   %s total, %s decoded, %s ignored, %s filtered\n",
		comma(st.Total), comma(st.Decoded), comma(st.Ignored), comma(st.Filtered))
	fmt.Fprintf(w, "Matched:   %s, pending %s, orphan completions %s\n",
		comma(st.Matched), comma(st.Pending), comma(st.Orphan))
	if st.ClockRegressions+st.NegativeDurations+st.QueueUnderflows+st.Abandoned+st.Dropped > 0 {
		fmt.Fprintf(w, "Anomalies: %s clock regressions, %s abandoned, %s dropped, %s negative durations, %s queue underflows\n",
			comma(st.ClockRegressions), comma(st.Abandoned), comma(st.Dropped),
			comma(st.NegativeDurations), comma(st.QueueUnderflows))
	}

	rs := rep.Response
	fmt.Fprintln(w)
	if rs.Count == 0 {
		fmt.Fprintln(w, "No matched operations.")
		return nil
	}
	fmt.Fprintf(w, "Response:  %s ops (%s reads, %s writes)\n",
		humanize.Comma(int64(rs.Count)), humanize.Comma(int64(rs.Reads)), humanize.Comma(int64(rs.Writes)))
	fmt.Fprintf(w, "           avg %.3f ms (read %.3f, write %.3f)  p50 %.3f  p95 %.3f  p99 %.3f  max %.3f\n",
		rs.AvgMS, rs.AvgReadMS, rs.AvgWriteMS, rs.P50MS, rs.P95MS, rs.P99MS, rs.MaxMS)

	fmt.Fprintf(w, "\nTop objects by %s:\n", rep.SortBy)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TYPE\tOBJECT\tOPS\tREADS\tWRITES\tUNMATCHED\tAVG ms\tP95 ms\tMAX ms\tAVG QD\tMAX QD\tBYTES\tIOPS\tMB/s\t")
	for _, o := range rep.Objects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%.2f\t%d\t%s\t%s\t%.2f\t\n",
			o.Type, o.Object,
			humanize.Comma(int64(o.Count)), humanize.Comma(int64(o.Reads)), humanize.Comma(int64(o.Writes)),
			humanize.Comma(int64(o.Unmatched)),
			o.AvgResponseMS, o.P95ResponseMS, o.MaxResponseMS,
			o.AvgQueueDepth, o.MaxQueueDepth,
			humanize.IBytes(o.Bytes), humanize.CommafWithDigits(o.IOPS, 1), o.MBps)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.Anomalies) > 0 {
		kinds := make([]string, 0, len(rep.Anomalies))
		for k := range rep.Anomalies {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "\nDiagnostics:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-20s %s\n", k, humanize.Comma(int64(rep.Anomalies[k])))
		}
	}
	return nil
}

func comma(n uint64) string {
	return humanize.Comma(int64(n))
}
