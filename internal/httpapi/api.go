// Package httpapi exposes the registry and invocation core over HTTP. The
// whole surface hangs off a single Dispatch function so the host HTTP
// layer is pluggable; a thin net/http server wrapper is provided for the
// common case.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vk/funcmesh/internal/artifact"
	"github.com/vk/funcmesh/internal/codec"
	"github.com/vk/funcmesh/internal/compile"
	"github.com/vk/funcmesh/internal/ctxlog"
	"github.com/vk/funcmesh/internal/invoke"
	"github.com/vk/funcmesh/internal/registry"
	"github.com/vk/funcmesh/internal/stream"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

const (
	contentText = "text/plain; charset=utf-8"
	contentJSON = "application/json"
)

// API translates HTTP requests into registry and invocation calls.
type API struct {
	registry *registry.Registry
	compiler *compile.Compiler
	invoker  *invoke.Invoker
}

// New creates the HTTP API over the given collaborators.
func New(reg *registry.Registry, comp *compile.Compiler, inv *invoke.Invoker) *API {
	return &API{registry: reg, compiler: comp, invoker: inv}
}

// registrationRequest is the wire form of a registration.
type registrationRequest struct {
	Name       string `json:"name"`
	Shape      string `json:"shape"`
	Source     string `json:"source"`
	InputType  string `json:"input_type,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// descriptorBody is the wire form of a registered function's metadata.
type descriptorBody struct {
	Name       string `json:"name"`
	Shape      string `json:"shape"`
	Source     string `json:"source"`
	InputType  string `json:"input_type,omitempty"`
	OutputType string `json:"output_type,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// compileErrorBody is the wire form of a compile failure.
type compileErrorBody struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Offset  int    `json:"offset"`
}

// errorBody is the generic error wire form.
type errorBody struct {
	Error string `json:"error"`
	// ElementIndex is set when an invocation failed on a specific element.
	ElementIndex *int `json:"element_index,omitempty"`
}

// Dispatch is the single entry point the host HTTP layer calls per
// request. rawPath may carry a query string. contentType describes the
// request body, accept the wanted response format. It returns the status
// code, response content type, and body.
func (a *API) Dispatch(ctx context.Context, method, rawPath, contentType, accept string, body []byte) (int, string, []byte) {
	u, err := url.Parse(rawPath)
	if err != nil {
		return jsonError(http.StatusBadRequest, fmt.Sprintf("bad path: %v", err), nil)
	}
	path := strings.TrimSuffix(u.Path, "/")
	query := u.Query()

	switch {
	case path == "/healthz":
		return http.StatusOK, contentText, []byte("OK\n")

	case path == "/functions":
		switch method {
		case http.MethodGet:
			return a.handleList()
		case http.MethodPost:
			return a.handleRegister(ctx, body)
		default:
			return jsonError(http.StatusMethodNotAllowed, "method not allowed", nil)
		}

	case strings.HasPrefix(path, "/functions/"):
		name := strings.TrimPrefix(path, "/functions/")
		switch method {
		case http.MethodGet:
			return a.handleDescribe(name)
		case http.MethodDelete:
			return a.handleDeregister(ctx, name)
		default:
			return jsonError(http.StatusMethodNotAllowed, "method not allowed", nil)
		}

	case path != "" && !strings.Contains(strings.TrimPrefix(path, "/"), "/"):
		return a.handleInvoke(ctx, method, strings.TrimPrefix(path, "/"), contentType, accept, body, query)

	default:
		return jsonError(http.StatusNotFound, "no such route", nil)
	}
}

func (a *API) handleList() (int, string, []byte) {
	names := a.registry.List()
	if names == nil {
		names = []string{}
	}
	data, _ := json.Marshal(names)
	return http.StatusOK, contentJSON, data
}

func (a *API) handleRegister(ctx context.Context, body []byte) (int, string, []byte) {
	logger := ctxlog.FromContext(ctx)

	var req registrationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return jsonError(http.StatusBadRequest, fmt.Sprintf("bad registration body: %v", err), nil)
	}
	if req.Name == "" {
		return jsonError(http.StatusBadRequest, "registration needs a name", nil)
	}
	shape, err := artifact.ParseShape(req.Shape)
	if err != nil {
		return jsonError(http.StatusBadRequest, err.Error(), nil)
	}

	compiled, err := a.compiler.Compile(ctx, req.Source, shape, compile.TypeHints{Input: req.InputType, Output: req.OutputType})
	if err != nil {
		var cerr *compile.Error
		if errors.As(err, &cerr) {
			logger.Info("Registration rejected by compiler.", "name", req.Name, "stage", cerr.Stage.String())
			data, _ := json.Marshal(compileErrorBody{Stage: cerr.Stage.String(), Message: cerr.Message, Offset: cerr.Offset})
			return http.StatusBadRequest, contentJSON, data
		}
		return jsonError(http.StatusBadRequest, err.Error(), nil)
	}

	desc := &artifact.Descriptor{
		Name:       req.Name,
		Shape:      shape,
		InputType:  compiled.InputType,
		OutputType: compiled.OutputType,
		Source:     req.Source,
		Handle:     compiled.Handle,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.registry.Register(desc); err != nil {
		// The loser of a name race releases its own isolation resources.
		_ = compiled.Handle.Close()
		if errors.Is(err, registry.ErrNameConflict) {
			return jsonError(http.StatusConflict, err.Error(), nil)
		}
		return jsonError(http.StatusBadRequest, err.Error(), nil)
	}

	logger.Info("Function registered.", "name", req.Name, "shape", shape.String())
	data, _ := json.Marshal(map[string]string{"name": req.Name})
	return http.StatusCreated, contentJSON, data
}

func (a *API) handleDescribe(name string) (int, string, []byte) {
	desc, err := a.registry.Lookup(name)
	if err != nil {
		return jsonError(http.StatusNotFound, err.Error(), nil)
	}
	body := descriptorBody{
		Name:      desc.Name,
		Shape:     desc.Shape.String(),
		Source:    desc.Source,
		CreatedAt: desc.CreatedAt.Format(time.RFC3339),
	}
	if desc.InputType != cty.NilType {
		body.InputType = desc.InputType.FriendlyName()
	}
	if desc.OutputType != cty.NilType {
		body.OutputType = desc.OutputType.FriendlyName()
	}
	data, _ := json.Marshal(body)
	return http.StatusOK, contentJSON, data
}

func (a *API) handleDeregister(ctx context.Context, name string) (int, string, []byte) {
	logger := ctxlog.FromContext(ctx)
	if err := a.registry.Deregister(name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return jsonError(http.StatusNotFound, err.Error(), nil)
		}
		// Teardown failures are fatal only to this artifact; the mapping
		// itself is already gone.
		logger.Error("Isolation teardown failed.", "name", name, "error", err)
		return jsonError(http.StatusInternalServerError, err.Error(), nil)
	}
	logger.Info("Function deregistered.", "name", name)
	data, _ := json.Marshal(map[string]string{"name": name})
	return http.StatusOK, contentJSON, data
}

// handleInvoke serves GET /{name} for sources and POST /{name} for
// transforms and sinks. A GET response format follows the Accept header; a
// POST mirrors its request body format unless Accept asks for JSON.
func (a *API) handleInvoke(ctx context.Context, method, name, contentType, accept string, body []byte, query url.Values) (int, string, []byte) {
	desc, err := a.registry.Lookup(name)
	if err != nil {
		return jsonError(http.StatusNotFound, err.Error(), nil)
	}

	policy, err := invoke.ParsePolicy(query.Get("on_error"))
	if err != nil {
		return jsonError(http.StatusBadRequest, err.Error(), nil)
	}

	switch method {
	case http.MethodGet:
		if desc.Shape != artifact.ShapeSource {
			return jsonError(http.StatusMethodNotAllowed, fmt.Sprintf("%q is a %s; invoke it with POST", name, desc.Shape), nil)
		}
		rounds := 1
		if raw := query.Get("count"); raw != "" {
			rounds, err = strconv.Atoi(raw)
			if err != nil || rounds < 1 {
				return jsonError(http.StatusBadRequest, "count must be a positive integer", nil)
			}
		}
		return a.invokeAndRespond(ctx, desc, nil, invoke.Options{Rounds: rounds, Policy: policy}, wantsJSON(accept))

	case http.MethodPost:
		if desc.Shape == artifact.ShapeSource {
			return jsonError(http.StatusMethodNotAllowed, fmt.Sprintf("%q is a source; invoke it with GET", name), nil)
		}
		in, asJSON, err := decodeInput(contentType, body, desc.InputType)
		if err != nil {
			return jsonError(http.StatusBadRequest, err.Error(), nil)
		}
		if wantsJSON(accept) {
			asJSON = true
		}
		return a.invokeAndRespond(ctx, desc, in, invoke.Options{Policy: policy}, asJSON)

	default:
		return jsonError(http.StatusMethodNotAllowed, "method not allowed", nil)
	}
}

// invokeAndRespond runs the invocation to completion and renders the
// output sequence in wire form, preserving element order.
func (a *API) invokeAndRespond(ctx context.Context, desc *artifact.Descriptor, in *stream.Seq, opts invoke.Options, asJSON bool) (int, string, []byte) {
	out, err := a.invoker.Invoke(ctx, desc, in, opts)
	if err != nil {
		return jsonError(http.StatusInternalServerError, err.Error(), nil)
	}
	vals, err := stream.Collect(ctx, out)
	if err != nil {
		var ierr *invoke.Error
		if errors.As(err, &ierr) {
			return jsonError(http.StatusInternalServerError, ierr.Error(), &ierr.Index)
		}
		return jsonError(http.StatusInternalServerError, err.Error(), nil)
	}

	if desc.Shape == artifact.ShapeSink {
		return http.StatusOK, contentText, nil
	}
	return encodeOutput(vals, asJSON)
}

// decodeInput splits the request body into an input sequence: newline-
// delimited strings for text, a JSON array for structured bodies.
func decodeInput(contentType string, body []byte, want cty.Type) (*stream.Seq, bool, error) {
	if wantsJSON(contentType) {
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, true, fmt.Errorf("JSON body must be an array of elements: %w", err)
		}
		vals := make([]cty.Value, 0, len(raws))
		for i, raw := range raws {
			v, err := codec.Decode(raw, want)
			if err != nil {
				return nil, true, fmt.Errorf("element %d: %w", i, err)
			}
			vals = append(vals, v)
		}
		return stream.FromValues(vals...), true, nil
	}

	var vals []cty.Value
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		vals = append(vals, cty.StringVal(line))
	}
	return stream.FromValues(vals...), false, nil
}

// encodeOutput joins elements back into a wire body: one element per line
// for text, a JSON array otherwise.
func encodeOutput(vals []cty.Value, asJSON bool) (int, string, []byte) {
	if asJSON {
		parts := make([]json.RawMessage, 0, len(vals))
		for _, v := range vals {
			data, err := ctyjson.Marshal(v, v.Type())
			if err != nil {
				return jsonError(http.StatusInternalServerError, fmt.Sprintf("unserializable element: %v", err), nil)
			}
			parts = append(parts, data)
		}
		body, _ := json.Marshal(parts)
		return http.StatusOK, contentJSON, body
	}

	var sb strings.Builder
	for _, v := range vals {
		data, err := codec.Encode(v)
		if err != nil {
			return jsonError(http.StatusInternalServerError, fmt.Sprintf("unserializable element: %v", err), nil)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return http.StatusOK, contentText, []byte(sb.String())
}

func wantsJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), contentJSON)
}

func jsonError(status int, msg string, elementIndex *int) (int, string, []byte) {
	data, _ := json.Marshal(errorBody{Error: msg, ElementIndex: elementIndex})
	return status, contentJSON, data
}
