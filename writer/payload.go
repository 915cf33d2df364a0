package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"signalflow/logger"
	"signalflow/models"
)

// PayloadWriter persists the run payload as a JSON artifact. Writes go
// through a temp file plus rename so a crashed run never leaves a partial
// artifact behind.
type PayloadWriter struct {
	dir string
	log *logger.Log
}

func NewPayloadWriter(dir string) *PayloadWriter {
	return &PayloadWriter{dir: dir, log: logger.GetLogger()}
}

// Write serializes the payload and returns the artifact path.
func (w *PayloadWriter) Write(payload *models.RunPayload) (string, error) {
	log := w.log.WithComponent("payload_writer").WithFields(logger.Fields{
		"run_id": payload.RunMetadata.RunID,
	})

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run payload: %w", err)
	}

	name := fmt.Sprintf("scan_%s_%s.json", payload.RunMetadata.EndDate, payload.RunMetadata.RunID)
	path := filepath.Join(w.dir, name)

	tmp, err := os.CreateTemp(w.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize payload artifact: %w", err)
	}

	log.WithFields(logger.Fields{"path": path, "bytes": len(data)}).Info("run payload written")
	logger.RecordStageItem("payload_write", len(data))
	return path, nil
}
