package api

import (
	"encoding/json"
	"strconv"
)

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func unmarshalJSON(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}
