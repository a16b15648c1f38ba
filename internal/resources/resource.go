// Package resources keeps the user resources, the A/B-tested key/value
// items served alongside campaigns, and the real-time user properties.
package resources

import (
	"regexp"
	"strconv"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
)

var truthy = regexp.MustCompile(`(?i)^(true|yes)$`)

// Resource gives typed access to the attributes of one user resource.
// The zero value is an empty resource and returns defaults.
type Resource struct {
	attrs models.Resource
}

// NewResource wraps attrs.
func NewResource(attrs models.Resource) Resource {
	return Resource{attrs: attrs}
}

// AttributeAsString returns the attribute or def when absent.
func (r Resource) AttributeAsString(attr, def string) string {
	if v, ok := r.attrs[attr]; ok {
		return v
	}
	return def
}

// AttributeAsNumber returns the attribute parsed as a number, or def when
// absent or not numeric.
func (r Resource) AttributeAsNumber(attr string, def float64) float64 {
	v, ok := r.attrs[attr]
	if !ok {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

// AttributeAsBool returns true for "true" or "yes" in any case, false for any
// other present value and def when absent.
func (r Resource) AttributeAsBool(attr string, def bool) bool {
	v, ok := r.attrs[attr]
	if !ok {
		return def
	}
	return truthy.MatchString(v)
}

// Attributes returns a copy of the raw attributes.
func (r Resource) Attributes() models.Resource {
	out := make(models.Resource, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}
