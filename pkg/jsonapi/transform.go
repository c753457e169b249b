package jsonapi

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Reserved keys of the flattened form. Attributes with these names stay in
// Item.Attributes but are shadowed when the Item is marshaled.
var reservedKeys = []string{"id", "type", "relationships", "links"}

// Item is a flattened resource: attributes hoisted next to id and type.
type Item struct {
	ID            string
	Type          string
	Attributes    map[string]json.RawMessage
	Relationships map[string]json.RawMessage // nil when absent on the wire
	Links         map[string]json.RawMessage // nil when absent on the wire
}

// List is a flattened collection. Data order matches the wire order.
type List struct {
	Data  []Item                     `json:"data"`
	Meta  map[string]json.RawMessage `json:"meta,omitempty"`
	Links map[string]json.RawMessage `json:"links,omitempty"`
}

// TransformSingle flattens one wire resource. The input is not modified and
// the result shares no maps with it.
func TransformSingle(r Resource) Item {
	item := Item{
		ID:         r.ID,
		Type:       r.Type,
		Attributes: maps.Clone(r.Attributes),
	}
	if item.Attributes == nil {
		item.Attributes = map[string]json.RawMessage{}
	}
	if r.Relationships != nil {
		item.Relationships = maps.Clone(r.Relationships)
	}
	if r.Links != nil {
		item.Links = maps.Clone(r.Links)
	}
	return item
}

// TransformList flattens every element of a collection, keeping order, and
// copies meta and pagination links through.
func TransformList(doc ListDocument) List {
	list := List{Data: make([]Item, len(doc.Data))}
	for i, r := range doc.Data {
		list.Data[i] = TransformSingle(r)
	}
	if doc.Meta != nil {
		list.Meta = maps.Clone(doc.Meta)
	}
	if doc.Links != nil {
		list.Links = maps.Clone(doc.Links)
	}
	return list
}

// MarshalJSON emits {id, type, ...attributes, relationships?, links?}.
// Reserved keys win over attributes of the same name.
func (i Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(i.Attributes)+4)
	for k, v := range i.Attributes {
		out[k] = v
	}

	var err error
	if out["id"], err = json.Marshal(i.ID); err != nil {
		return nil, err
	}
	if out["type"], err = json.Marshal(i.Type); err != nil {
		return nil, err
	}
	if i.Relationships != nil {
		if out["relationships"], err = json.Marshal(i.Relationships); err != nil {
			return nil, err
		}
	} else {
		delete(out, "relationships")
	}
	if i.Links != nil {
		if out["links"], err = json.Marshal(i.Links); err != nil {
			return nil, err
		}
	} else {
		delete(out, "links")
	}

	return json.Marshal(out)
}

// Collisions lists attribute names that are shadowed by reserved keys in the
// flattened form, sorted.
func (i Item) Collisions() []string {
	var names []string
	for _, k := range reservedKeys {
		if _, ok := i.Attributes[k]; ok {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}

// Attr returns the raw value of an attribute.
func (i Item) Attr(name string) (json.RawMessage, bool) {
	v, ok := i.Attributes[name]
	return v, ok
}

// StringAttr returns a string attribute, or "" when it is absent, null or not
// a string.
func (i Item) StringAttr(name string) string {
	var s string
	if v, ok := i.Attributes[name]; ok {
		_ = json.Unmarshal(v, &s)
	}
	return s
}

// Link returns the href of a resource-level link, accepting both the plain
// string form and the {"href": ...} link object form.
func (i Item) Link(name string) string {
	return linkHref(i.Links[name])
}

// RelatedURL returns relationships.<name>.links.related.href, the URL that
// fetches the related resource or collection.
func (i Item) RelatedURL(name string) string {
	raw, ok := i.Relationships[name]
	if !ok {
		return ""
	}
	var rel struct {
		Links map[string]json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(raw, &rel); err != nil {
		return ""
	}
	return linkHref(rel.Links["related"])
}

// NextURL returns links.next, or "" on the last page.
func (l List) NextURL() string {
	return linkHref(l.Links["next"])
}

// Total returns the collection size reported by the server. It reads
// meta.total and falls back to links.meta.total, which is where OSF puts it.
func (l List) Total() (int, bool) {
	if n, ok := intMember(l.Meta, "total"); ok {
		return n, true
	}
	raw, ok := l.Links["meta"]
	if !ok {
		return 0, false
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return 0, false
	}
	return intMember(meta, "total")
}

// Decode converts an Item to T by way of its flattened JSON form, so T's
// fields are tagged with attribute names directly.
func Decode[T any](i Item) (T, error) {
	var out T
	data, err := json.Marshal(i)
	if err != nil {
		return out, fmt.Errorf("failed to encode %s %s: %w", i.Type, i.ID, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s %s: %w", i.Type, i.ID, err)
	}
	return out, nil
}

// DecodeAll applies Decode to each item, stopping at the first failure.
func DecodeAll[T any](items []Item) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := Decode[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func linkHref(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Href
	}
	return ""
}

func intMember(m map[string]json.RawMessage, key string) (int, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}
