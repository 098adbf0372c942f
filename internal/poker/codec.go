package poker

import (
	"encoding/json"
	"fmt"
)

const keyPrefix = "room:"

// RoomKey is the store key holding a room's document.
func RoomKey(id string) string { return keyPrefix + id }

func encodeRoom(r *Room) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	return b, nil
}

func decodeRoom(b []byte) (*Room, error) {
	var r Room
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &r, nil
}
