package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "problem",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/problems/:id",
			Fields: []Field{
				{Name: "id", Prompt: "problem_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/problems",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problem_json", Aliases: []string{"json"}, Prompt: "problem_json (JSON)", Type: FieldJSON, Required: true},
				{Name: "problem_file", Aliases: []string{"file"}, Prompt: "problem_file", Type: FieldFile},
			},
		},
		{
			Service:      "submit",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions",
			RequiresAuth: true,
			Fields:       append(sourceFields(true), Field{Name: "idempotency_key", Aliases: []string{"key"}, Prompt: "idempotency_key", Type: FieldString}),
		},
		{
			Service:      "submit",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/run",
			RequiresAuth: true,
			Fields:       sourceFields(true),
		},
		{
			Service:      "submit",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submit",
			Action:       "source",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/source",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "user",
			Action:       "progress",
			Method:       "GET",
			PathTemplate: "/api/v1/users/me/progress",
			RequiresAuth: true,
		},
		{
			Service:      "room",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/competitions",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problem_id", Prompt: "problem_id", Type: FieldInt64},
				{Name: "max_participants", Aliases: []string{"max"}, Prompt: "max_participants", Type: FieldInt},
			},
		},
		{
			Service:      "room",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/competitions/:code",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "code", Prompt: "room_code", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "room",
			Action:       "join",
			Method:       "POST",
			PathTemplate: "/api/v1/competitions/:code/join",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "code", Prompt: "room_code", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "room",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/competitions/:code/submit",
			RequiresAuth: true,
			Fields: append([]Field{
				{Name: "code", Prompt: "room_code", Type: FieldString, Required: true},
			}, sourceFields(false)...),
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

func sourceFields(withProblem bool) []Field {
	fields := []Field{
		{Name: "language", Aliases: []string{"lang"}, Prompt: "language (cpp|java|python)", Type: FieldString, Required: true},
		{Name: "source_code", Prompt: "source_code", Type: FieldString, Required: true},
		{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile},
	}
	if withProblem {
		fields = append([]Field{{Name: "problem_id", Prompt: "problem_id", Type: FieldInt64, Required: true}}, fields...)
	}
	return fields
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	if cmd.Service == "submit" && cmd.Action == "create" {
		headers["Idempotency-Key"] = params.Get("idempotency_key")
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id", "code"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := strings.TrimSpace(params.Get(key))
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			if key == "code" {
				value = strings.ToUpper(value)
			}
			path = strings.ReplaceAll(path, placeholder, value)
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "problem":
		if cmd.Action == "create" {
			return parseJSONOrFile(params, "problem_json", "problem_file")
		}
	case "submit":
		switch cmd.Action {
		case "create", "run":
			return buildSourcePayload(params, true)
		}
	case "room":
		switch cmd.Action {
		case "create":
			payload := map[string]interface{}{}
			if params.Get("problem_id") != "" {
				problemID, err := ParseInt64(params.Get("problem_id"))
				if err != nil {
					return nil, fmt.Errorf("invalid problem_id: %w", err)
				}
				payload["problemId"] = problemID
			}
			if params.Get("max_participants") != "" {
				limit, err := ParseInt(params.Get("max_participants"))
				if err != nil {
					return nil, fmt.Errorf("invalid max_participants: %w", err)
				}
				payload["maxParticipants"] = limit
			}
			return payload, nil
		case "submit":
			return buildSourcePayload(params, false)
		}
	}
	return nil, nil
}

func buildSourcePayload(params Params, withProblem bool) (interface{}, error) {
	sourceCode := params.Get("source_code")
	if (sourceCode == "" || sourceCode == FileMarker) && params.Get("source_file") != "" {
		data, err := ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
		sourceCode = data
	}
	if sourceCode == "" || sourceCode == FileMarker {
		return nil, fmt.Errorf("source_code is required")
	}

	payload := map[string]interface{}{
		"language":   params.Get("language"),
		"sourceCode": sourceCode,
	}
	if withProblem {
		problemID, err := ParseInt64(params.Get("problem_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid problem_id: %w", err)
		}
		payload["problemId"] = problemID
	}
	return payload, nil
}

func parseJSONOrFile(params Params, key, fileKey string) (json.RawMessage, error) {
	value := params.Get(key)
	if (value == "" || value == FileMarker) && params.Get(fileKey) != "" {
		data, err := ReadFile(params.Get(fileKey))
		if err != nil {
			return nil, err
		}
		value = data
	}
	if value == "" || value == FileMarker {
		return nil, fmt.Errorf("%s is required", key)
	}
	return ParseJSON(value)
}
