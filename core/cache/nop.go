package cache

// Nop drops every Put and misses every Get. It stands in wherever a Cache
// is wanted but caching is switched off.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) Get(string) (any, bool)        { return nil, false }
func (Nop) Put(string, any, ...PutOption) {}
func (Nop) Delete(string)                 {}

var _ Cache = Nop{}
