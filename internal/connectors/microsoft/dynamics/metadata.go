package dynamics

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/custodia-labs/d365-mcp/internal/connectors/microsoft"
	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// ParseEntity extracts properties, navigation properties and key fields of
// entityName from a $metadata (EDMX/CSDL) document.
//
// The EntityType is matched on an exact name or, failing that, on a name where
// either is a prefix of the other, so "CustomersV3" finds "CustomersV3Type".
// The first matching block wins. A matched block that yields no
// properties is abandoned and scanning continues, which covers documents with
// several schemas. Results are in document order.
//
// The prefix rule can pick the wrong type when names overlap ("Customer" vs
// "CustomerV3"); an exact match only wins if it appears first.
func ParseEntity(document, entityName string) (*domain.EntityMetadata, error) {
	dec := newLenientDecoder(document)

	var (
		inEntity bool
		inKey    bool
		meta     domain.EntityMetadata
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			// io.EOF or a malformed tail; keep whatever was collected.
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "EntityType":
				if !inEntity {
					if name, ok := attr(t, "Name"); ok && entityTypeMatches(name, entityName) {
						inEntity = true
					}
				}
			case "Key":
				inKey = inEntity
			case "PropertyRef":
				if inEntity && inKey {
					if name, ok := attr(t, "Name"); ok {
						meta.KeyFields = append(meta.KeyFields, name)
					}
				}
			case "Property":
				if inEntity {
					if name, ok := attr(t, "Name"); ok {
						meta.Properties = append(meta.Properties, renderProperty(name, t))
					}
				}
			case "NavigationProperty":
				if inEntity {
					if name, ok := attr(t, "Name"); ok {
						meta.NavigationProperties = append(meta.NavigationProperties, renderNavigation(name, t))
					}
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "Key":
				inKey = false
			case "EntityType":
				if !inEntity {
					continue
				}
				if found(&meta) {
					return &meta, nil
				}
				inEntity = false
				meta.KeyFields = nil
			}
		}
	}

	if !found(&meta) {
		return nil, &microsoft.ODataError{
			Kind:   microsoft.ODataNotFound,
			Detail: "Entity '" + entityName + "' not found in metadata",
		}
	}
	return &meta, nil
}

// ExtractEntitySets returns the Name of every EntitySet in document order.
// An empty result means the document declared none; callers supply their own fallback.
func ExtractEntitySets(document string) []string {
	dec := newLenientDecoder(document)

	var names []string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "EntitySet" {
			if name, ok := attr(start, "Name"); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func newLenientDecoder(document string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(document))
	dec.Strict = false
	// The document is already a Go string; ignore any declared charset.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

func entityTypeMatches(name, entityName string) bool {
	return name == entityName ||
		strings.HasPrefix(name, entityName) ||
		strings.HasPrefix(entityName, name)
}

func found(meta *domain.EntityMetadata) bool {
	return len(meta.Properties) > 0 || len(meta.NavigationProperties) > 0
}

func attr(el xml.StartElement, local string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// renderProperty renders "name: Type" with every "Edm." stripped, or bare name.
func renderProperty(name string, el xml.StartElement) string {
	typ, ok := attr(el, "Type")
	if !ok {
		return name
	}
	return name + ": " + strings.ReplaceAll(typ, "Edm.", "")
}

// renderNavigation renders "name -> Target" or "name -> [Target]" for collections,
// where Target is the last dotted segment of the type.
func renderNavigation(name string, el xml.StartElement) string {
	typ, ok := attr(el, "Type")
	if !ok {
		return name
	}

	clean := strings.ReplaceAll(typ, "Collection(", "")
	clean = strings.ReplaceAll(clean, ")", "")
	if i := strings.LastIndex(clean, "."); i >= 0 {
		clean = clean[i+1:]
	}

	if strings.Contains(typ, "Collection") {
		return name + " -> [" + clean + "]"
	}
	return name + " -> " + clean
}
