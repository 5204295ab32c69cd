package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes integers sent as JSON numbers, numeric strings or
// booleans. Null and "" decode as 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*f = 0
		return nil
	case bytes.Equal(b, []byte("true")):
		*f = 1
		return nil
	case bytes.Equal(b, []byte("false")):
		*f = 0
		return nil
	}

	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("protocol: %q is not an integer", s)
	}
	*f = FlexInt(n)
	return nil
}

// Flag decodes the gateway's loose booleans: true, 1, "1" and "true" are
// true; everything else is false.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}
