package browsy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
)

// OperationName identifies one dispatchable browsy operation
type OperationName string

const (
	OpBrowse    OperationName = "browse"
	OpClick     OperationName = "click"
	OpTypeText  OperationName = "typeText"
	OpCheck     OperationName = "check"
	OpUncheck   OperationName = "uncheck"
	OpSelect    OperationName = "select"
	OpSearch    OperationName = "search"
	OpLogin     OperationName = "login"
	OpEnterCode OperationName = "enterCode"
	OpFind      OperationName = "find"
	OpGetPage   OperationName = "getPage"
	OpPageInfo  OperationName = "pageInfo"
	OpTables    OperationName = "tables"
	OpBack      OperationName = "back"
)

// Operation is a typed browsy call. The set is closed: only the parameter
// types in this file implement it.
type Operation interface {
	Name() OperationName
	request() apiRequest
}

type apiRequest struct {
	method string
	path   string
	query  url.Values
	body   any
}

type BrowseParams struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

type ClickParams struct {
	ID int `json:"id"`
}

type TypeTextParams struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type CheckParams struct {
	ID int `json:"id"`
}

type UncheckParams struct {
	ID int `json:"id"`
}

type SelectParams struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

type SearchParams struct {
	Query  string `json:"query"`
	Engine string `json:"engine,omitempty"`
}

type LoginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type EnterCodeParams struct {
	Code string `json:"code"`
}

type FindParams struct {
	Text string `json:"text,omitempty"`
	Role string `json:"role,omitempty"`
}

type GetPageParams struct {
	Format string `json:"format,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

type PageInfoParams struct{}

type TablesParams struct{}

type BackParams struct{}

func (BrowseParams) Name() OperationName    { return OpBrowse }
func (ClickParams) Name() OperationName     { return OpClick }
func (TypeTextParams) Name() OperationName  { return OpTypeText }
func (CheckParams) Name() OperationName     { return OpCheck }
func (UncheckParams) Name() OperationName   { return OpUncheck }
func (SelectParams) Name() OperationName    { return OpSelect }
func (SearchParams) Name() OperationName    { return OpSearch }
func (LoginParams) Name() OperationName     { return OpLogin }
func (EnterCodeParams) Name() OperationName { return OpEnterCode }
func (FindParams) Name() OperationName      { return OpFind }
func (GetPageParams) Name() OperationName   { return OpGetPage }
func (PageInfoParams) Name() OperationName  { return OpPageInfo }
func (TablesParams) Name() OperationName    { return OpTables }
func (BackParams) Name() OperationName      { return OpBack }

func (p BrowseParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/browse", body: p}
}

func (p ClickParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/click", body: p}
}

func (p TypeTextParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/type", body: p}
}

func (p CheckParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/check", body: p}
}

func (p UncheckParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/uncheck", body: p}
}

func (p SelectParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/select", body: p}
}

func (p SearchParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/search", body: p}
}

func (p LoginParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/login", body: p}
}

func (p EnterCodeParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/enter-code", body: p}
}

func (p FindParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/find", body: p}
}

func (p GetPageParams) request() apiRequest {
	query := url.Values{}
	if p.Format != "" {
		query.Set("format", p.Format)
	}
	if p.Scope != "" {
		query.Set("scope", p.Scope)
	}
	return apiRequest{method: http.MethodGet, path: "/api/page", query: query}
}

func (PageInfoParams) request() apiRequest {
	return apiRequest{method: http.MethodGet, path: "/api/page-info"}
}

func (TablesParams) request() apiRequest {
	return apiRequest{method: http.MethodGet, path: "/api/tables"}
}

func (BackParams) request() apiRequest {
	return apiRequest{method: http.MethodPost, path: "/api/back"}
}

// operationSpec describes how loosely typed parameters become an Operation
type operationSpec struct {
	required []string
	decode   func(raw []byte) (Operation, error)
}

func decodeAs[T Operation](raw []byte) (Operation, error) {
	var op T
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&op); err != nil {
		return nil, err
	}
	return op, nil
}

// operationTable is the dispatch table. Every OperationName constant has an entry;
// TestOperationTableIsTotal guards this.
var operationTable = map[OperationName]operationSpec{
	OpBrowse:    {required: []string{"url"}, decode: decodeAs[BrowseParams]},
	OpClick:     {required: []string{"id"}, decode: decodeAs[ClickParams]},
	OpTypeText:  {required: []string{"id", "text"}, decode: decodeAs[TypeTextParams]},
	OpCheck:     {required: []string{"id"}, decode: decodeAs[CheckParams]},
	OpUncheck:   {required: []string{"id"}, decode: decodeAs[UncheckParams]},
	OpSelect:    {required: []string{"id", "value"}, decode: decodeAs[SelectParams]},
	OpSearch:    {required: []string{"query"}, decode: decodeAs[SearchParams]},
	OpLogin:     {required: []string{"username", "password"}, decode: decodeAs[LoginParams]},
	OpEnterCode: {required: []string{"code"}, decode: decodeAs[EnterCodeParams]},
	OpFind:      {decode: decodeAs[FindParams]},
	OpGetPage:   {decode: decodeAs[GetPageParams]},
	OpPageInfo:  {decode: decodeAs[PageInfoParams]},
	OpTables:    {decode: decodeAs[TablesParams]},
	OpBack:      {decode: decodeAs[BackParams]},
}

// OperationNames returns every dispatchable operation name, sorted
func OperationNames() []OperationName {
	names := make([]OperationName, 0, len(operationTable))
	for name := range operationTable {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// IsKnownOperation reports whether name is in the closed operation set
func IsKnownOperation(name string) bool {
	_, ok := operationTable[OperationName(name)]
	return ok
}

// ParseOperation turns an operation name and loose parameters into a typed
// Operation. Unknown names fail with ErrUnknownOperation and malformed
// parameters with ErrInvalidParams.
func ParseOperation(name string, params map[string]any) (Operation, error) {
	spec, ok := operationTable[OperationName(name)]
	if !ok {
		return nil, &Error{
			Code:    ErrCodeUnknownOperation,
			Message: fmt.Sprintf("Unknown browsy method: %s", name),
		}
	}

	for _, key := range spec.required {
		if v, present := params[key]; !present || v == nil {
			return nil, &Error{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("%s: missing required parameter %q", name, key),
			}
		}
	}

	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("%s: failed to encode parameters: %v", name, err),
			Err:     err,
		}
	}

	op, err := spec.decode(raw)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("%s: invalid parameters: %v", name, err),
			Err:     err,
		}
	}

	return op, nil
}
