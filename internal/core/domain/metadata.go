package domain

// EntityMetadata describes one entity type extracted from a $metadata document.
type EntityMetadata struct {
	// Properties are rendered as "name: Type" (Edm. prefix stripped) or bare "name".
	Properties []string
	// NavigationProperties are rendered as "name -> Target" or "name -> [Target]".
	NavigationProperties []string
	// KeyFields are the PropertyRef names from the entity's Key element.
	KeyFields []string
}
