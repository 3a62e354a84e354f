package service

// Name is the service name layers are authorized for.
const Name = "kml"

type Access string

const (
	AccessFull    Access = "full"
	AccessPartial Access = "partial"
	AccessNone    Access = "none"
)

// LayerPermission is what a partially authorized caller may do with one layer.
type LayerPermission struct {
	Tile bool `yaml:"tile" json:"tile"`
}

// Authorization is the outcome of an Authorizer. With partial access only the layers
// that have Tile permission may be used.
type Authorization struct {
	Authorized Access                     `yaml:"authorized" json:"authorized"`
	Layers     map[string]LayerPermission `yaml:"layers" json:"layers"`
}

// Authorizer decides whether the caller may use layers of a service.
type Authorizer interface {
	Authorize(service string, layers []string) Authorization
}

// AuthorizerFunc adapts a function to an Authorizer.
type AuthorizerFunc func(service string, layers []string) Authorization

func (f AuthorizerFunc) Authorize(service string, layers []string) Authorization {
	return f(service, layers)
}

// StaticAuthorizer answers every request with the same Authorization.
type StaticAuthorizer Authorization

func (a StaticAuthorizer) Authorize(string, []string) Authorization {
	return Authorization(a)
}

// authorize checks layer against a. A nil authorizer allows everything.
func authorize(a Authorizer, layer string) error {
	if a == nil {
		return nil
	}
	result := a.Authorize(Name, []string{layer})
	switch result.Authorized {
	case AccessFull:
		return nil
	case AccessPartial:
		if result.Layers[layer].Tile {
			return nil
		}
	}
	return &ForbiddenError{Layer: layer}
}
