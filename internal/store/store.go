// Package store persists trade records as append-only JSON lines. Entries
// and exits are separate events so a crash mid-trade still leaves the entry
// on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TradeRecord is the entry event for one trade.
type TradeRecord struct {
	TradeID  string    `json:"trade_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Entry    float64   `json:"entry"`
	StopLoss float64   `json:"stop_loss"`
	Target   float64   `json:"target"`
	Quantity int       `json:"quantity"`
	OrderID  string    `json:"order_id"`
	Strategy string    `json:"strategy"`
	OpenedAt time.Time `json:"opened_at"`
}

// ExitRecord closes a previously saved trade.
type ExitRecord struct {
	TradeID    string    `json:"trade_id"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	Reason     string    `json:"reason"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Store records trade lifecycles. Implementations must be safe for use from
// the trading loop.
type Store interface {
	SaveTrade(rec TradeRecord) error
	UpdateTradeExit(rec ExitRecord) error
	Close() error
}

type event struct {
	Event string `json:"event"`
	Trade any    `json:"trade"`
}

// JSONLStore appends one JSON object per line to a single file.
type JSONLStore struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONL opens (or creates) the trade log at path, creating parent
// directories as needed.
func OpenJSONL(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create trade log dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	return &JSONLStore{file: file, enc: json.NewEncoder(file)}, nil
}

func (s *JSONLStore) append(kind string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event{Event: kind, Trade: payload}); err != nil {
		return fmt.Errorf("append %s record: %w", kind, err)
	}
	return nil
}

// SaveTrade appends the entry event.
func (s *JSONLStore) SaveTrade(rec TradeRecord) error {
	return s.append("entry", rec)
}

// UpdateTradeExit appends the exit event for an earlier trade.
func (s *JSONLStore) UpdateTradeExit(rec ExitRecord) error {
	return s.append("exit", rec)
}

// Close flushes and releases the underlying file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
