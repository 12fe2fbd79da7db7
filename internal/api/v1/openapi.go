package apiv1

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

var fiberParam = regexp.MustCompile(`:([A-Za-z0-9_]+)`)

// LoadSpec loads and validates the OpenAPI document at path.
func LoadSpec(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi %s: %w", path, err)
	}
	return doc, nil
}

// Undocumented returns "METHOD /path" for every route under prefix that has
// no matching operation in doc. HEAD routes fiber adds for GET are skipped.
func Undocumented(doc *openapi3.T, routes []fiber.Route, prefix string) []string {
	seen := map[string]bool{}
	var missing []string
	for _, r := range routes {
		if r.Method == fiber.MethodHead || !strings.HasPrefix(r.Path, prefix) {
			continue
		}
		path := strings.TrimPrefix(r.Path, prefix)
		if path == "" || path == "/" {
			continue
		}
		key := r.Method + " " + path
		if seen[key] {
			continue
		}
		seen[key] = true

		item := doc.Paths.Find(fiberParam.ReplaceAllString(path, "{$1}"))
		if item == nil || item.GetOperation(r.Method) == nil {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
