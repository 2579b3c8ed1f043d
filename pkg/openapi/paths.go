package openapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JaimeStill/vigil/pkg/routes"
)

// AddRoutes adds an operation for every route in groups, rooted at basePath.
// Path parameters come from {name} segments and each operation is tagged
// with the last literal segment of its group prefix.
func (s *Spec) AddRoutes(basePath string, groups ...routes.Group) {
	for _, g := range groups {
		s.addGroup(basePath, g)
	}
}

func (s *Spec) addGroup(parent string, g routes.Group) {
	prefix := parent + g.Prefix
	tag := groupTag(g.Prefix)

	for _, r := range g.Routes {
		path := prefix + r.Pattern
		if path == "" {
			path = "/"
		}

		item, ok := s.Paths[path]
		if !ok {
			item = &PathItem{}
			s.Paths[path] = item
		}

		op := newOperation(r.Method, path, tag)
		switch r.Method {
		case http.MethodGet:
			item.Get = op
		case http.MethodPost:
			item.Post = op
		case http.MethodPut:
			item.Put = op
		case http.MethodDelete:
			item.Delete = op
		}
	}

	for _, child := range g.Children {
		s.addGroup(prefix, child)
	}
}

func newOperation(method, path, tag string) *Operation {
	op := &Operation{
		Responses: map[int]*Response{},
	}
	if tag != "" {
		op.Tags = []string{tag}
	}

	params := pathParams(path)
	for _, p := range params {
		op.Parameters = append(op.Parameters, PathParam(p, ""))
	}

	switch method {
	case http.MethodPost, http.MethodPut:
		op.RequestBody = &RequestBody{
			Content: map[string]*MediaType{
				"application/json": {Schema: &Schema{Type: "object"}},
			},
		}
		op.Responses[http.StatusBadRequest] = ResponseRef("BadRequest")
	case http.MethodDelete:
		op.Responses[http.StatusNoContent] = &Response{Description: "Deleted"}
	}

	if method != http.MethodDelete {
		op.Responses[http.StatusOK] = &Response{Description: "OK"}
	}
	if len(params) > 0 {
		op.Responses[http.StatusNotFound] = ResponseRef("NotFound")
	}
	return op
}

func pathParams(path string) []string {
	var params []string
	for seg := range strings.SplitSeq(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, strings.TrimSuffix(strings.Trim(seg, "{}"), "..."))
		}
	}
	return params
}

func groupTag(prefix string) string {
	segs := strings.Split(strings.Trim(prefix, "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "" && !strings.HasPrefix(segs[i], "{") {
			return segs[i]
		}
	}
	return ""
}

// MarshalJSON serializes the spec to indented JSON bytes.
func MarshalJSON(spec *Spec) ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}
