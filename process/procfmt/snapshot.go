package procfmt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowkernel/flowkernel/process"
)

// Snapshot is a durable, JSON-encodable envelope for one process
// instance: its ProcessInfo plus an integrity hash and timestamp,
// independent of the backing store. The store backends do not use it;
// they persist the value passed to SaveProcess as given.
type Snapshot struct {
	ProcessID string          `json:"process_id"`
	RunID     string          `json:"run_id"`
	Info      json.RawMessage `json:"info"`
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
}

// EncodeSnapshot marshals info to JSON and wraps it with an integrity
// hash over the encoded bytes.
func EncodeSnapshot(processID, runID string, info process.ProcessInfo, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("procfmt: encode process info: %w", err)
	}
	sum := sha256.Sum256(raw)
	snap := Snapshot{
		ProcessID: processID,
		RunID:     runID,
		Info:      raw,
		Hash:      "sha256:" + hex.EncodeToString(sum[:]),
		Timestamp: at,
	}
	return json.Marshal(snap)
}

// DecodeSnapshot unmarshals data into a Snapshot and verifies its
// integrity hash before unmarshaling the embedded ProcessInfo.
func DecodeSnapshot(data []byte) (process.ProcessInfo, Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return process.ProcessInfo{}, Snapshot{}, fmt.Errorf("procfmt: decode snapshot: %w", err)
	}
	sum := sha256.Sum256(snap.Info)
	want := "sha256:" + hex.EncodeToString(sum[:])
	if snap.Hash != want {
		return process.ProcessInfo{}, Snapshot{}, fmt.Errorf("procfmt: snapshot integrity hash mismatch")
	}
	var info process.ProcessInfo
	if err := json.Unmarshal(snap.Info, &info); err != nil {
		return process.ProcessInfo{}, Snapshot{}, fmt.Errorf("procfmt: decode process info: %w", err)
	}
	return info, snap, nil
}
