package types

import (
	"strconv"
	"time"

	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/icmpprobe"
)

// ProbeResult is the record written for every probed target
type ProbeResult struct {
	// Required fields
	ScanID    string `json:"scan_id"`
	Target    string `json:"target"`
	Status    string `json:"status"` // reply-received, timed-out, scan-failed
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"` // RFC3339 format date-time

	// Optional fields
	IP        string  `json:"ip,omitempty"`
	RTTMillis float64 `json:"rtt_ms,omitempty"`
	Reply     string  `json:"reply,omitempty"` // decoded ICMP type of the reply
	Error     *string `json:"error,omitempty"`
}

// NewProbeResult builds the record of a resolved target
func NewProbeResult(scanID string, target *icmpprobe.Target, at time.Time) *ProbeResult {
	result := &ProbeResult{
		ScanID: scanID,
		Target: target.Address,
		Status: target.State().String(),
		Alive:  target.Alive(),
	}
	result.SetTimestamp(at)
	if addr := target.Addr(); addr.IsValid() {
		result.IP = addr.String()
	}
	if target.Alive() {
		result.RTTMillis = float64(target.RTT().Microseconds()) / 1000
		result.Reply = target.Reply()
	}
	if err := target.Err(); err != nil {
		result.SetError(err.Error())
	}
	return result
}

// Validate checks if the result has all required fields populated
func (r *ProbeResult) Validate() error {
	if r.ScanID == "" {
		return &ValidationError{Field: "scan_id", Message: "scan_id is required"}
	}
	if r.Target == "" {
		return &ValidationError{Field: "target", Message: "target is required"}
	}
	if r.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	}
	switch r.Status {
	case icmpprobe.ReplyReceived.String(), icmpprobe.TimedOut.String(), icmpprobe.ScanFailed.String():
	default:
		return &ValidationError{Field: "status", Message: "status must be a terminal state, got " + strconv.Quote(r.Status)}
	}
	if r.Alive != (r.Status == icmpprobe.ReplyReceived.String()) {
		return &ValidationError{Field: "alive", Message: "alive disagrees with status"}
	}
	return nil
}

// SetTimestamp sets the timestamp from a time.Time value
func (r *ProbeResult) SetTimestamp(t time.Time) {
	r.Timestamp = t.Format(time.RFC3339)
}

// SetError sets the error field
func (r *ProbeResult) SetError(err string) {
	r.Error = &err
}

// CSVHeader returns the header row for CSV output
func CSVHeader() []string {
	return []string{"scan_id", "timestamp", "target", "ip", "status", "alive", "rtt_ms", "reply", "error"}
}

// CSVRow converts the result into a CSV record matching CSVHeader
func (r *ProbeResult) CSVRow() []string {
	var errStr string
	if r.Error != nil {
		errStr = *r.Error
	}
	return []string{
		r.ScanID,
		r.Timestamp,
		r.Target,
		r.IP,
		r.Status,
		strconv.FormatBool(r.Alive),
		strconv.FormatFloat(r.RTTMillis, 'f', 2, 64),
		r.Reply,
		errStr,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
