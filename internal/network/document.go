package network

import (
	"github.com/google/uuid"

	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// FromDocument builds a network from its serialized form with a fresh
// identity.
func FromDocument(doc models.NetworkDocument) (*Network, error) {
	return FromStoredDocument(uuid.Nil, doc)
}

// FromStoredDocument rebuilds a persisted network under its stored
// identity.
func FromStoredDocument(id uuid.UUID, doc models.NetworkDocument) (*Network, error) {
	def := Definition{
		ID:        id,
		Name:      doc.Name,
		Variables: make([]Variable, len(doc.Variables)),
		Parents:   make(map[string][]string),
		CPTs:      make(map[string]CPT, len(doc.Variables)),
	}
	for i, v := range doc.Variables {
		def.Variables[i] = Variable{Name: v.Name, States: v.States}
		if len(v.Parents) > 0 {
			def.Parents[v.Name] = v.Parents
		}
		if v.CPT.Scope != nil || v.CPT.Values != nil {
			def.CPTs[v.Name] = CPT{Scope: v.CPT.Scope, Values: v.CPT.Values}
		}
	}
	return Build(def)
}

// Document serializes the network. CPTs are written in canonical scope
// order (parents..., variable), so the round trip is lossless.
func (n *Network) Document() models.NetworkDocument {
	doc := models.NetworkDocument{
		Name:      n.name,
		Variables: make([]models.VariableDocument, len(n.vars)),
	}
	for i, v := range n.vars {
		var parents []string
		scope := make([]string, 0, len(n.parents[i])+1)
		for _, p := range n.parents[i] {
			parents = append(parents, n.vars[p].Name)
			scope = append(scope, n.vars[p].Name)
		}
		scope = append(scope, v.Name)
		doc.Variables[i] = models.VariableDocument{
			Name:    v.Name,
			States:  append([]string(nil), v.States...),
			Parents: parents,
			CPT: models.CPTDocument{
				Scope:  scope,
				Values: n.cpts[i].Values(),
			},
		}
	}
	return doc
}
