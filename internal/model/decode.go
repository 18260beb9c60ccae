package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rcliao/affect-matrix/internal/apperr"
)

// DecodeNpcConfig strictly decodes a caller-supplied config payload.
// Unknown fields and trailing data are rejected. Zero memory settings are
// resolved from defaults before validation.
func DecodeNpcConfig(raw json.RawMessage, defaults MemoryConfig) (NpcConfig, error) {
	const op = "decode npc config"
	var cfg NpcConfig
	if err := decodeStrict(raw, &cfg); err != nil {
		return NpcConfig{}, apperr.E(apperr.ConfigInvalid, op, err)
	}
	cfg.MemoryConfig = cfg.MemoryConfig.WithDefaults(defaults)
	if err := cfg.Validate(); err != nil {
		return NpcConfig{}, err
	}
	return cfg, nil
}

// DecodeRecords strictly decodes and validates a seed or import payload.
// An empty payload yields no records.
func DecodeRecords(raw json.RawMessage) ([]MemoryRecord, error) {
	const op = "decode memory records"
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var records []MemoryRecord
	if err := decodeStrict(raw, &records); err != nil {
		return nil, apperr.E(apperr.ConfigInvalid, op, err)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, apperr.Wrap(apperr.ConfigInvalid, op, err)
	}
	return records, nil
}

func decodeStrict(raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after payload")
	}
	return nil
}
