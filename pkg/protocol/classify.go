package protocol

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	sessionInitSchema      = mustCompile("session_init.json")
	modelExecSchema        = mustCompile("model_exec_request.json")
	modelExecAuthSchema    = mustCompile("model_exec_request_auth.json")
	schedulerRequestSchema = mustCompile("scheduler_request.json")
	nodeRegisterSchema     = mustCompile("node_register.json")
	nodeHeartbeatSchema    = mustCompile("node_heartbeat.json")
)

func mustCompile(name string) *gojsonschema.Schema {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(fmt.Sprintf("read embedded schema %s: %v", name, err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// KnownMessageType reports whether the discriminator value names a kind any
// endpoint in the system serves.
func KnownMessageType(messageType string) bool {
	_, _, known := schemaFor(messageType, false)
	return known
}

// schemaFor maps a message_type discriminator to its schema and kind. The
// auth flag only changes which model-exec variant applies.
func schemaFor(messageType string, requireAuth bool) (*gojsonschema.Schema, MessageKind, bool) {
	switch messageType {
	case TypeSessionInit:
		return sessionInitSchema, KindSessionInit, true
	case TypeModelExecRequest:
		if requireAuth {
			return modelExecAuthSchema, KindModelExecRequest, true
		}
		return modelExecSchema, KindModelExecRequest, true
	case TypeSchedulerRequest:
		return schedulerRequestSchema, KindSchedulerRequest, true
	case TypeNodeRegister:
		return nodeRegisterSchema, KindNodeRegister, true
	case TypeNodeHeartbeat:
		return nodeHeartbeatSchema, KindNodeHeartbeat, true
	}
	return nil, KindInvalid, false
}

// Classify determines which message kind a raw payload is, returning
// KindInvalid plus the collected validation errors when it matches nothing.
//
// When the payload carries the explicit message_type discriminator, only that
// kind's schema is consulted. Legacy payloads without the field are matched
// by shape, session-init first. requireAuth selects the model-exec schema
// variant that makes session_secret mandatory; whether the secret names a
// live session is checked later, not here.
func Classify(raw []byte, requireAuth bool) (MessageKind, []string) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return KindInvalid, []string{fmt.Sprintf("payload is not a JSON object: %v", err)}
	}

	doc := gojsonschema.NewGoLoader(payload)

	if mt, ok := payload["message_type"].(string); ok {
		schema, kind, known := schemaFor(mt, requireAuth)
		if !known {
			return KindInvalid, []string{fmt.Sprintf("unsupported message type %q", mt)}
		}
		result, err := schema.Validate(doc)
		if err != nil {
			return KindInvalid, []string{err.Error()}
		}
		if !result.Valid() {
			return KindInvalid, resultErrors(kind, result)
		}
		return kind, nil
	}

	// No discriminator: shape matching, first hit wins.
	candidates := []struct {
		schema *gojsonschema.Schema
		kind   MessageKind
	}{
		{sessionInitSchema, KindSessionInit},
		{modelExecSchema, KindModelExecRequest},
		{schedulerRequestSchema, KindSchedulerRequest},
	}
	if requireAuth {
		candidates[1].schema = modelExecAuthSchema
	}

	var errs []string
	for _, c := range candidates {
		result, err := c.schema.Validate(doc)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if result.Valid() {
			return c.kind, nil
		}
		errs = append(errs, resultErrors(c.kind, result)...)
	}

	return KindInvalid, errs
}

func resultErrors(kind MessageKind, result *gojsonschema.Result) []string {
	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", kind, desc.String()))
	}
	return errs
}
