package protocol

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type schemaRegistry struct {
	once    sync.Once
	initErr error
	events  map[string]*jsonschema.Schema
}

var inboundSchemas schemaRegistry

func initSchemas() error {
	inboundSchemas.once.Do(func() {
		sources := map[string]string{
			EventNewMessage:        newMessageSchema,
			EventUserTyping:        typingSchema,
			EventUserStoppedTyping: typingSchema,
			EventUserOnline:        presenceSchema,
			EventUserOffline:       presenceSchema,
			EventFriendRequest:     friendSchema,
			EventFriendAccepted:    friendSchema,
		}
		inboundSchemas.events = make(map[string]*jsonschema.Schema, len(sources))
		for name, src := range sources {
			compiled, err := jsonschema.CompileString("inbound_"+name+".json", src)
			if err != nil {
				inboundSchemas.initErr = err
				return
			}
			inboundSchemas.events[name] = compiled
		}
	})
	return inboundSchemas.initErr
}

func validatePayload(event string, data json.RawMessage) error {
	if err := initSchemas(); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("missing data")
	}
	schema := inboundSchemas.events[event]
	if schema == nil {
		return nil
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

const idSchema = `{ "anyOf": [ { "type": "string", "minLength": 1 }, { "type": "integer" } ] }`

const newMessageSchema = `{
  "type": "object",
  "required": ["chat_id", "message"],
  "properties": {
    "chat_id": ` + idSchema + `,
    "sender": { "anyOf": [ { "type": "string" }, { "type": "object" }, { "type": "null" } ] },
    "message": { "type": "string" },
    "created_at": { "anyOf": [ { "type": "string" }, { "type": "integer" }, { "type": "null" } ] }
  }
}`

const typingSchema = `{
  "type": "object",
  "required": ["chat_id", "user_id"],
  "properties": {
    "chat_id": ` + idSchema + `,
    "user_id": ` + idSchema + `,
    "username": { "type": "string" }
  }
}`

const presenceSchema = `{
  "type": "object",
  "required": ["user_id"],
  "properties": {
    "user_id": ` + idSchema + `
  }
}`

const friendSchema = `{
  "type": "object",
  "required": ["user_id"],
  "properties": {
    "user_id": ` + idSchema + `,
    "username": { "type": "string" }
  }
}`
