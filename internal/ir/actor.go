package ir

// Actor is the identity a request runs as, as issued by the token service.
// ID 0 is the anonymous actor.
type Actor struct {
	ID    int64 `json:"id" yaml:"id"`
	Super bool  `json:"super,omitempty" yaml:"super,omitempty"`
}

// Anonymous reports whether the actor carries no user id.
func (a Actor) Anonymous() bool {
	return a.ID == 0
}
