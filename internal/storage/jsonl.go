package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"poolstates/internal/model"
)

// JsonlStore writes records to a JSONL file, one envelope per line with a
// kind tag. Mostly useful for local runs and debugging.
type JsonlStore struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStore(path string) *JsonlStore {
	return &JsonlStore{path: path}
}

type jsonlLine struct {
	Kind     model.Kind      `json:"kind"`
	TickInfo *model.TickInfo `json:"tick_info,omitempty"`
	Slot0    *model.Slot0    `json:"slot0,omitempty"`
	Trade    *model.Trade    `json:"trade,omitempty"`
}

// InsertTickInfos appends tick-info rows as JSON lines.
func (s *JsonlStore) InsertTickInfos(_ context.Context, records []model.TickInfo) error {
	lines := make([]jsonlLine, 0, len(records))
	for i := range records {
		lines = append(lines, jsonlLine{Kind: model.KindTickInfo, TickInfo: &records[i]})
	}
	return s.appendLines(lines)
}

// InsertSlot0s appends slot0 rows as JSON lines.
func (s *JsonlStore) InsertSlot0s(_ context.Context, records []model.Slot0) error {
	lines := make([]jsonlLine, 0, len(records))
	for i := range records {
		lines = append(lines, jsonlLine{Kind: model.KindSlot0, Slot0: &records[i]})
	}
	return s.appendLines(lines)
}

// InsertTrades appends trade rows as JSON lines.
func (s *JsonlStore) InsertTrades(_ context.Context, records []model.Trade) error {
	lines := make([]jsonlLine, 0, len(records))
	for i := range records {
		lines = append(lines, jsonlLine{Kind: model.KindTrade, Trade: &records[i]})
	}
	return s.appendLines(lines)
}

func (s *JsonlStore) appendLines(lines []jsonlLine) error {
	if len(lines) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		encoded, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(encoded); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
