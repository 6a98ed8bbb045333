package wire

import "encoding/json"

// Summary is the externally observable output of a benchmark run. It
// is kept as a plain struct with an explicit Marshal/Unmarshal pair,
// never leaning on a struct tag alone for the wire boundary that faces
// an operator's terminal or a results file.
type Summary struct {
	TotalProcessed uint64 `json:"total_processed"`
	ShortCount uint64 `json:"short_count"`
	LongCount uint64 `json:"long_count"`
	PreemptionCount uint64 `json:"preemption_count"`
	StartUnixNano int64 `json:"start_unix_nano"`
	EndUnixNano int64 `json:"end_unix_nano"`
	LatencyP50Ns uint64 `json:"latency_p50_ns"`
	LatencyP99Ns uint64 `json:"latency_p99_ns"`
	LatencyP999Ns uint64 `json:"latency_p999_ns"`
	SlowdownP99 float64 `json:"slowdown_p99"`
	PerTypeProcessed map[string]uint64 `json:"per_type_processed,omitempty"`
}

// Marshal renders the summary as indented JSON for `-json` CLI output.
func (s Summary) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", " ")
}

// UnmarshalSummary parses a Summary previously produced by Marshal.
func UnmarshalSummary(data []byte) (Summary, error) {
	var s Summary
	err := json.Unmarshal(data, &s)
	return s, err
}
