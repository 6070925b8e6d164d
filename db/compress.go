package db

import (
	"encoding/json"
	"fmt"

	"drudge/models"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// CompressEntries stores a snapshot's entries as zstd-compressed JSON
func CompressEntries(entries []models.ArticleEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.ArticleEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("error encoding entries: %w", err)
	}
	return encoder.EncodeAll(data, nil), nil
}

func DecompressEntries(blob []byte) ([]models.ArticleEntry, error) {
	data, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("error decompressing entries: %w", err)
	}
	var entries []models.ArticleEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error decoding entries: %w", err)
	}
	return entries, nil
}
