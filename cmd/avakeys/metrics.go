package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// writeMetrics prints gathered metric families one sample per line.
// Histograms are summarized by their count and sum.
func writeMetrics(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			labels := formatLabels(m.GetLabel())

			var err error
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				_, err = fmt.Fprintf(w, "%s%s %g\n", name, labels, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				_, err = fmt.Fprintf(w, "%s%s %g\n", name, labels, m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				if _, err = fmt.Fprintf(w, "%s_count%s %d\n", name, labels, h.GetSampleCount()); err == nil {
					_, err = fmt.Fprintf(w, "%s_sum%s %g\n", name, labels, h.GetSampleSum())
				}
			default:
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
