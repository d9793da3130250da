package models

import "time"

// ProcessingState is the durable cursor of the relay loop.
type ProcessingState struct {
	LastProcessedMessageID string    `json:"last_processed_message_id"`
	LastTradeTimestamp     time.Time `json:"last_trade_timestamp"`
	SeenSignalHashes       []string  `json:"seen_signal_hashes"`
}

func NewProcessingState() *ProcessingState {
	return &ProcessingState{SeenSignalHashes: []string{}}
}
