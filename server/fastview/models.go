// fastview builds simple server-side views: a data model is converted to a view-model, which is
// multiplexed to one or more views, each emitting element updates over a channel for a
// websocket client to apply to the page.
package fastview

import (
	"html/template"
)

// EleUpdate is an element id and the operations to apply to it.
type EleUpdate struct {
	EleId string
	// Op keys are attribute names, or 'textContent' to set the element's text.
	Ops []Op
}

// Op is an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// ViewComponent is a server-side view. Parse adds the view's template to the parent, under the
// returned name, inheriting the parent's func-map. Updates notifies ele-updates.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	Parse(*template.Template) (string, error)
}
