package query

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrBadCursor is returned when a page cursor cannot be decoded or was
// issued for a different sort than the current request.
var ErrBadCursor = eris.New("query: invalid page cursor")

// cursor is the keyset pagination token: the sort key it was issued for and
// the last returned row's sort value and id. Value is the Postgres text form
// of the sort column and is cast back server-side, so the token stays opaque
// to clients.
type cursor struct {
	Key   string    `json:"k"`
	Dir   string    `json:"d"`
	Value *string   `json:"v"`
	ID    uuid.UUID `json:"id"`
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

func decodeCursor(token string, wantKey SortKey, wantDir SortDir) (cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, eris.Wrap(ErrBadCursor, "decode base64")
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}, eris.Wrap(ErrBadCursor, "decode json")
	}
	if c.Key != string(wantKey) || c.Dir != string(wantDir) {
		return cursor{}, eris.Wrap(ErrBadCursor, "cursor sort mismatch")
	}
	if c.ID == uuid.Nil {
		return cursor{}, eris.Wrap(ErrBadCursor, "cursor missing row id")
	}
	return c, nil
}
