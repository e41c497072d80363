package domain

import (
	"encoding/json"
	"sort"
)

// StringList accepts either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Recipe is a catalog entry as stored by the recipe service. Free-form OCR
// sections are kept raw since the core never interprets them.
type Recipe struct {
	Key                string          `json:"-"`
	Title              string          `json:"Title"`
	MealTypes          StringList      `json:"Type,omitempty"`
	ImageURL           string          `json:"image_url,omitempty"`
	ImageSearchResults []string        `json:"image_search_results,omitempty"`
	Servings           json.RawMessage `json:"Servings,omitempty"`
	Ingredients        json.RawMessage `json:"Ingredients,omitempty"`
	Directions         json.RawMessage `json:"Directions,omitempty"`
	Description        json.RawMessage `json:"Description,omitempty"`
}

// PendingImageSelection reports whether the recipe has image candidates but
// no chosen image yet.
func (r Recipe) PendingImageSelection() bool {
	return len(r.ImageSearchResults) > 0 && r.ImageURL == ""
}

// Clone copies slice fields.
func (r Recipe) Clone() Recipe {
	out := r
	out.MealTypes = append(StringList(nil), r.MealTypes...)
	out.ImageSearchResults = append([]string(nil), r.ImageSearchResults...)
	return out
}

// Catalog maps recipe keys to recipes.
type Catalog map[string]Recipe

// Keys returns catalog keys in sorted order.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy with recipe keys filled in.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for key, recipe := range c {
		recipe = recipe.Clone()
		recipe.Key = key
		out[key] = recipe
	}
	return out
}
