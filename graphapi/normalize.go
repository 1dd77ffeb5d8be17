package graphapi

import (
	"bytes"
	"fmt"
	"os"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/internal/xjson"
)

// Normalize converts any accepted workflow serialization into a canonical graph.
//
// Accepted inputs, in order: an already canonical graph (returned unchanged),
// an editor document with nodes and links arrays, or an object whose prompt or
// workflow field holds a canonical graph.
func Normalize(doc any) (Graph, error) {
	switch g := doc.(type) {
	case Graph:
		if canonicalGraph(g) {
			return g, nil
		}
	case map[string]*Node:
		if canonicalGraph(Graph(g)) {
			return Graph(g), nil
		}
	case map[string]any:
		if IsCanonical(g) {
			return graphFromTree(g), nil
		}
		if isEditorDocument(g) {
			if converted := convertEditorDocument(g); converted != nil {
				return converted, nil
			}
		}
		candidate, ok := g["prompt"]
		if !ok || candidate == nil {
			candidate = g["workflow"]
		}
		if tree, ok := candidate.(map[string]any); ok && IsCanonical(tree) {
			return graphFromTree(tree), nil
		}
	}
	return nil, comfyerr.New(comfyerr.NormalizationError, "failed to normalize workflow")
}

func isEditorDocument(doc map[string]any) bool {
	_, hasNodes := doc["nodes"].([]any)
	_, hasLinks := doc["links"].([]any)
	return hasNodes && hasLinks
}

// convertEditorDocument returns nil when no executable node survives conversion.
func convertEditorDocument(doc map[string]any) Graph {
	nodes := doc["nodes"].([]any)
	links := linkTable(doc["links"].([]any))

	g := make(Graph)
	for _, raw := range nodes {
		n, ok := parseEditorNode(raw)
		if !ok || n.IsAnnotation() {
			continue
		}
		g[NodeKey(n.ID)] = n.canonicalize(links)
	}
	if !canonicalGraph(g) {
		return nil
	}
	return g
}

// NormalizeJSON parses data and normalizes the result.
func NormalizeJSON(data []byte) (Graph, error) {
	var doc any
	if err := xjson.Unmarshal(data, &doc); err != nil {
		return nil, comfyerr.New(comfyerr.InvalidWorkflow, "workflow is not valid JSON").
			WithDetails(map[string]any{"cause": err.Error()}).Wrap(err)
	}
	return Normalize(doc)
}

// NormalizeFile loads a workflow from a JSON file or from a PNG carrying
// embedded workflow metadata.
func NormalizeFile(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, comfyerr.Newf(comfyerr.FileNotFound, "workflow file %s not readable", path).
			WithDetails(map[string]any{"file": path}).Wrap(err)
	}

	var g Graph
	if bytes.HasPrefix(data, pngSignature) {
		var doc any
		doc, err = ExtractPNGWorkflow(bytes.NewReader(data))
		if err == nil {
			g, err = Normalize(doc)
		}
	} else {
		g, err = NormalizeJSON(data)
	}
	if err != nil {
		ce, ok := comfyerr.As(err)
		if !ok || ce.Code == comfyerr.NormalizationError {
			return nil, comfyerr.New(comfyerr.InvalidWorkflow, fmt.Sprintf("invalid workflow %s", path)).
				WithDetails(map[string]any{"file": path}).Wrap(err)
		}
		if ce.Details == nil {
			ce.Details = map[string]any{}
		}
		ce.Details["file"] = path
		return nil, ce
	}
	return g, nil
}
