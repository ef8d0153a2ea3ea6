package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// ChatID identifies a conversation multiplexed over the connection.
//
// Backends send chat ids either as JSON strings or JSON integers. The value
// is kept in its textual form and written back in the form the server used:
// canonical integers go out as JSON numbers unless the server sent that id
// as a JSON string.
type ChatID string

// UserID identifies a chat participant. It follows the same encoding rules
// as ChatID.
type UserID string

var (
	quotedChatIDs = newQuotedSet()
	quotedUserIDs = newQuotedSet()
)

// quotedSet remembers integer-looking ids that arrived as JSON strings.
type quotedSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newQuotedSet() *quotedSet {
	return &quotedSet{ids: make(map[string]struct{})}
}

func (q *quotedSet) add(v string) {
	q.mu.Lock()
	q.ids[v] = struct{}{}
	q.mu.Unlock()
}

func (q *quotedSet) has(v string) bool {
	q.mu.RLock()
	_, ok := q.ids[v]
	q.mu.RUnlock()
	return ok
}

func (id ChatID) String() string { return string(id) }
func (id UserID) String() string { return string(id) }

// MarshalJSON implements json.Marshaler.
func (id ChatID) MarshalJSON() ([]byte, error) { return marshalID(string(id), quotedChatIDs) }

// UnmarshalJSON implements json.Unmarshaler.
func (id *ChatID) UnmarshalJSON(data []byte) error {
	v, err := unmarshalID(data, quotedChatIDs)
	if err != nil {
		return fmt.Errorf("chat_id: %w", err)
	}
	*id = ChatID(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id UserID) MarshalJSON() ([]byte, error) { return marshalID(string(id), quotedUserIDs) }

// UnmarshalJSON implements json.Unmarshaler.
func (id *UserID) UnmarshalJSON(data []byte) error {
	v, err := unmarshalID(data, quotedUserIDs)
	if err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*id = UserID(v)
	return nil
}

func marshalID(v string, quoted *quotedSet) ([]byte, error) {
	if isCanonicalInt(v) && !quoted.has(v) {
		return []byte(v), nil
	}
	return json.Marshal(v)
}

func unmarshalID(data []byte, quoted *quotedSet) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", fmt.Errorf("id is null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		if isCanonicalInt(s) {
			quoted.add(s)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("id must be a string or integer")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("id must be an integer, got %s", n)
	}
	return n.String(), nil
}

// isCanonicalInt reports whether s is an int64 in its shortest decimal form,
// so writing it unquoted yields the same JSON number.
func isCanonicalInt(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}
