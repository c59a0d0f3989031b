package finderd

import (
	"encoding/json"

	"finder/internal/model"
)

const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServer         = -32000
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type QueryParams struct {
	Q      string `json:"q"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type QueryResult struct {
	Total   int               `json:"total"`
	Version int64             `json:"version"`
	Items   []model.PathEntry `json:"items"`
}

type RemoveParams struct {
	Path string `json:"path"`
}

type StatusResult struct {
	Status   model.IndexStatus `json:"status"`
	Message  string            `json:"message,omitempty"`
	Entries  int               `json:"entries"`
	Version  int64             `json:"version"`
	Watching bool              `json:"watching"`
}
