package utils

import (
	_ "embed"
	"fmt"

	"github.com/q-controller/imaged/src/pkg/images"
	"gopkg.in/yaml.v3"
)

const (
	Tag        = "ImageService"
	PathPrefix = "/images"
)

//go:embed docs/openapi.yaml
var openAPISpecs string

// GenerateOpenAPISpecs merges the image routes into the base document.
func GenerateOpenAPISpecs() (string, error) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal([]byte(openAPISpecs), &spec); err != nil {
		return "", fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	tags, _ := spec["tags"].([]interface{})
	found := false
	for _, t := range tags {
		if entry, ok := t.(map[string]interface{}); ok && entry["name"] == Tag {
			found = true
			break
		}
	}
	if !found {
		spec["tags"] = append(tags, map[string]interface{}{"name": Tag})
	}

	paths, ok := spec["paths"].(map[string]interface{})
	if !ok {
		paths = map[string]interface{}{}
		spec["paths"] = paths
	}

	var imagesSpec map[string]interface{}
	if unmarshalErr := yaml.Unmarshal([]byte(images.GetOpenAPISpec(PathPrefix, Tag)), &imagesSpec); unmarshalErr != nil {
		return "", fmt.Errorf("failed to parse images OpenAPI spec: %w", unmarshalErr)
	}
	for k, v := range imagesSpec {
		paths[k] = v
	}

	bytes, bytesErr := yaml.Marshal(spec)
	if bytesErr != nil {
		return "", fmt.Errorf("failed to marshal OpenAPI spec: %w", bytesErr)
	}
	return string(bytes), nil
}
