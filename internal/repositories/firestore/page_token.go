package firestore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// listCursor marks the last document of a page so the next query can resume
// after it. At carries the timestamp order key and Key the lexical order key;
// only one of the two is populated for a given listing.
type listCursor struct {
	At  time.Time `json:"at,omitempty"`
	Key string    `json:"key,omitempty"`
	ID  string    `json:"id"`
}

func encodeListCursor(cursor listCursor) (string, error) {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeListCursor(token string) (listCursor, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return listCursor{}, errors.New("page token is empty")
	}
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return listCursor{}, errors.New("page token is malformed")
	}
	var cursor listCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return listCursor{}, errors.New("page token is malformed")
	}
	if cursor.ID == "" {
		return listCursor{}, errors.New("page token is malformed")
	}
	return cursor, nil
}

func normalisePageSize(size int) int {
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}
