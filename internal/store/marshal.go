package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// marshalPayload converts a capacity payload to canonical JSON TEXT and
// returns its fingerprint alongside.
func marshalPayload(payload ir.IRValue) (text, hash string, err error) {
	if payload == nil {
		payload = ir.Null
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal payload: %w", err)
	}
	hash, err = ir.PayloadHash(payload)
	if err != nil {
		return "", "", err
	}
	return string(data), hash, nil
}

// unmarshalPayload parses canonical JSON TEXT. Numbers go through
// json.Number so large integers survive.
func unmarshalPayload(data string) (ir.IRValue, error) {
	if data == "" {
		return ir.Null, nil
	}
	v, err := ir.ParseJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

// marshalIDs stores an ID list as a sorted JSON array. nil becomes "[]".
func marshalIDs(ids []string) (string, error) {
	out := slices.Clone(ids)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

func unmarshalIDs(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return ids, nil
}

// marshalLinked returns the four linked-set columns in schema order.
func marshalLinked(sets model.LinkedSets) ([4]string, error) {
	var cols [4]string
	for i, ids := range [][]string{sets.Variables, sets.Formulas, sets.Conditions, sets.Tables} {
		text, err := marshalIDs(ids)
		if err != nil {
			return cols, err
		}
		cols[i] = text
	}
	return cols, nil
}

func unmarshalLinked(cols [4]string) (model.LinkedSets, error) {
	var sets model.LinkedSets
	targets := []*[]string{&sets.Variables, &sets.Formulas, &sets.Conditions, &sets.Tables}
	for i, text := range cols {
		ids, err := unmarshalIDs(text)
		if err != nil {
			return model.LinkedSets{}, err
		}
		*targets[i] = ids
	}
	return sets, nil
}

// mapConstraint wraps uniqueness and primary key violations in
// model.ErrConflict, and foreign key violations in model.ErrNotFound, so
// callers can test for them without the driver.
func mapConstraint(err error, what string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%s: %w: %v", what, model.ErrConflict, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: owner %w: %v", what, model.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
