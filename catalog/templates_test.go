package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/comfyagent/comfyerr"
)

func templateNamesOf(ts []RemoteTemplate) []string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.Name)
	}
	return names
}

func TestExtractTemplatesFlatArray(t *testing.T) {
	payload := []any{
		"zeta",
		map[string]any{"name": "alpha", "description": "first"},
		map[string]any{"template_name": "beta"},
		map[string]any{"id": "gamma"},
		map[string]any{"title": "no name"},
		map[string]any{"name": "alpha", "description": "duplicate"},
		42,
	}
	got := ExtractTemplates(payload)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "zeta"}, templateNamesOf(got))
	assert.Equal(t, "first", got[0].Raw.(map[string]any)["description"])
	assert.Equal(t, map[string]any{"name": "zeta"}, got[3].Raw)
}

func TestExtractTemplatesCategories(t *testing.T) {
	payload := []any{
		map[string]any{
			"moduleName": "default",
			"title":      "Basics",
			"type":       "image",
			"templates": []any{
				map[string]any{"name": "default", "mediaType": "image"},
				"upscale",
			},
		},
		map[string]any{
			"moduleName": "video",
			"templates":  []any{map[string]any{"name": "wan"}},
		},
	}
	got := ExtractTemplates(payload)
	assert.Equal(t, []string{"default", "upscale", "wan"}, templateNamesOf(got))

	def := got[0].Raw.(map[string]any)
	assert.Equal(t, "Basics", def["category"])
	assert.Equal(t, "image", def["category_type"])
	assert.Equal(t, "image", def["mediaType"])

	wan := got[2].Raw.(map[string]any)
	assert.Equal(t, "video", wan["category"])
	_, hasType := wan["category_type"]
	assert.False(t, hasType)
}

func TestExtractTemplatesObject(t *testing.T) {
	payload := map[string]any{
		"templates": []any{"from_templates"},
		"items":     []any{map[string]any{"name": "from_items"}},
		"categories": []any{
			map[string]any{"title": "Cat", "templates": []any{"from_category"}},
		},
		"keyed": map[string]any{"description": "keyed by name"},
		"note":  "strings are not templates",
		"name":  "self",
	}
	got := ExtractTemplates(payload)
	assert.Equal(t, []string{"from_category", "from_items", "from_templates", "keyed", "self"}, templateNamesOf(got))
}

func TestExtractTemplatesFirstOccurrenceWins(t *testing.T) {
	payload := map[string]any{
		"templates": []any{map[string]any{"name": "a", "v": 1.0}},
		"items":     []any{map[string]any{"name": "a", "v": 2.0}},
	}
	got := ExtractTemplates(payload)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Raw.(map[string]any)["v"])
}

func TestExtractTemplatesUnsupported(t *testing.T) {
	assert.Empty(t, ExtractTemplates(nil))
	assert.Empty(t, ExtractTemplates("text"))
}

func TestFetchTemplatesMergesInEndpointOrder(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/workflow_templates": map[string]any{
			"templates": []any{map[string]any{"name": "shared", "from": "first"}, "only_first"},
		},
		"/templates/index.json": []any{
			map[string]any{"name": "shared", "from": "static"},
			"only_static",
		},
	})
	r := NewResolver(getter)

	listing, err := r.FetchTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"only_first", "only_static", "shared"}, listing.Names())
	assert.Equal(t, "/workflow_templates, /templates/index.json", listing.Endpoint)

	shared, ok := listing.Find("shared")
	require.True(t, ok)
	assert.Equal(t, "first", shared.Raw.(map[string]any)["from"])
}

func TestFetchTemplatesSkipsFailedEndpoints(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/api/workflow_templates": []any{"beta", map[string]any{"name": "alpha"}},
	})
	r := NewResolver(getter)

	listing, err := r.FetchTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, listing.Names())
	assert.Equal(t, "/api/workflow_templates", listing.Endpoint)
	assert.Equal(t, []string{"/api/workflow_templates"}, listing.Endpoints)
}

func TestFetchTemplatesAllFail(t *testing.T) {
	getter := newFakeGetter(nil)
	getter.failures["/api/workflow_templates"] = 500
	r := NewResolver(getter)

	_, err := r.FetchTemplates(context.Background())
	ce, ok := comfyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, comfyerr.RemoteTemplateFetchFailed, ce.Code)
	assert.Equal(t, comfyerr.ExitRemote, ce.ExitCode())

	attempts := ce.Details["attempts"].([]map[string]any)
	require.Len(t, attempts, 3)
	assert.Equal(t, "/workflow_templates", attempts[0]["endpoint"])
	assert.Equal(t, 404, attempts[0]["status"])
	assert.Equal(t, 500, attempts[1]["status"])
}

func TestFindTemplate(t *testing.T) {
	getter := newFakeGetter(map[string]any{
		"/workflow_templates": []any{"txt2img"},
	})
	r := NewResolver(getter)

	tmpl, listing, err := r.FindTemplate(context.Background(), "txt2img")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, "/workflow_templates", listing.Endpoint)

	tmpl, _, err = r.FindTemplate(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tmpl)
}
