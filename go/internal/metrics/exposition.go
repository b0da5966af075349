package metrics

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WritePrometheus renders every metric in the text exposition format:
// counters as <name>_total, gauges as-is and histograms as cumulative
// _bucket{le=...} series followed by _sum and _count.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bw := bufio.NewWriter(w)

	for _, name := range sortedKeys(r.counters) {
		full := r.fullName(name) + "_total"
		r.writeHeader(bw, name, full, "counter")
		fmt.Fprintf(bw, "%s %d\n\n", full, r.counters[name])
	}

	for _, name := range sortedKeys(r.gauges) {
		full := r.fullName(name)
		r.writeHeader(bw, name, full, "gauge")
		fmt.Fprintf(bw, "%s %s\n\n", full, formatFloat(r.gauges[name]))
	}

	for _, name := range sortedKeys(r.histograms) {
		h := r.histograms[name]
		full := r.fullName(name)
		r.writeHeader(bw, name, full, "histogram")

		var cumulative uint64
		for i, bound := range h.bounds {
			cumulative += h.counts[i]
			fmt.Fprintf(bw, "%s_bucket{le=%q} %d\n", full, formatFloat(bound), cumulative)
		}
		cumulative += h.counts[len(h.bounds)]
		fmt.Fprintf(bw, "%s_bucket{le=\"+Inf\"} %d\n", full, cumulative)
		fmt.Fprintf(bw, "%s_sum %s\n", full, formatFloat(h.sum))
		fmt.Fprintf(bw, "%s_count %d\n\n", full, h.count)
	}

	return bw.Flush()
}

// Exposition returns WritePrometheus output as a string.
func (r *Registry) Exposition() string {
	var sb strings.Builder
	_ = r.WritePrometheus(&sb)
	return sb.String()
}

func (r *Registry) writeHeader(w io.Writer, name, full, kind string) {
	help := r.help[name]
	if help == "" {
		help = strings.ReplaceAll(name, "_", " ")
	}
	fmt.Fprintf(w, "# HELP %s %s\n", full, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", full, kind)
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
