// Package jsonutil handles the loosely typed JSON that LLMs produce.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleString converts a json.RawMessage to a string, tolerating numbers
// and booleans where a string was expected. Returns "" for null/empty.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleFloat converts a json.RawMessage to a float64, tolerating quoted
// numbers ("0.85") and percent strings ("85%"). Returns 0 when nothing
// numeric can be recovered.
func FlexibleFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		strVal = strings.TrimSpace(strVal)
		percent := strings.HasSuffix(strVal, "%")
		strVal = strings.TrimSuffix(strVal, "%")
		if v, err := strconv.ParseFloat(strVal, 64); err == nil {
			if percent {
				return v / 100
			}
			return v
		}
	}

	return 0
}
