// Package jsonapi flattens JSON:API response documents into a shape that is
// convenient to consume: each resource's attributes are hoisted next to its
// id and type, while relationships, links, meta and pagination links are
// carried through unchanged.
//
// The transformation is pure and lossless. Attribute values stay raw JSON
// until the caller decodes them, either one at a time with Item.Attr or into
// a struct with Decode.
//
//	var doc jsonapi.ListDocument
//	_ = json.Unmarshal(body, &doc)
//	list := jsonapi.TransformList(doc)
//
//	type Node struct {
//	    ID    string `json:"id"`
//	    Title string `json:"title"`
//	}
//	nodes, err := jsonapi.DecodeAll[Node](list.Data)
package jsonapi
