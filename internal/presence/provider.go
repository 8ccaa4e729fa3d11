package presence

// Well-known presence keys.
const (
	DisplayKey   = "steam_display"
	GroupKey     = "steam_player_group"
	GroupSizeKey = "steam_player_group_size"
)

// Value is a nullable string. Publishing a null value removes the key.
type Value struct {
	s     string
	valid bool
}

// Set returns a non-null value holding s.
func Set(s string) Value {
	return Value{s: s, valid: true}
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool {
	return !v.valid
}

// Get returns the string and whether the value is non-null.
func (v Value) Get() (string, bool) {
	return v.s, v.valid
}

// String returns the held string, or "<null>".
func (v Value) String() string {
	if !v.valid {
		return "<null>"
	}
	return v.s
}

// Provider is the set of primitives the Publisher needs from a presence SDK.
// Implementations must tolerate RunCallbacks being called concurrently with
// the other methods.
type Provider interface {
	// Init connects to the provider under the given application id.
	Init(appID string) error
	// RunCallbacks services pending provider callbacks. It must not block.
	RunCallbacks()
	// Publish sets key to v, or removes it when v is null.
	Publish(key string, v Value) error
	// ClearAll removes every key.
	ClearAll() error
	// Shutdown disconnects from the provider.
	Shutdown() error
}

// Field is one static key/value pair published on every cycle.
type Field struct {
	Key   string
	Value string
}

// Fields is what the Publisher writes besides the status line itself.
type Fields struct {
	// Template is the display template id published under DisplayKey.
	Template string
	// DynamicKey receives the status line.
	DynamicKey string
	GroupID    string
	GroupSize  string
	Static     []Field
}

// HasGroup reports whether both group fields are set.
func (f Fields) HasGroup() bool {
	return f.GroupID != "" && f.GroupSize != ""
}
