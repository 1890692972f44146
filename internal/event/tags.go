package event

// Tag is an ordered (key, value) pair attached to an event. Order of
// tags is preserved for storage but irrelevant for matching.
type Tag [2]string

// NewTag builds a tag pair.
func NewTag(key, value string) Tag {
	return Tag{key, value}
}

// Key returns the tag key.
func (t Tag) Key() string {
	return t[0]
}

// Value returns the tag value.
func (t Tag) Value() string {
	return t[1]
}

// Tags is the ordered tag sequence carried by an event or a filter.
type Tags []Tag

// First returns the value of the first tag with the given key and
// whether such a tag exists.
func (ts Tags) First(key string) (string, bool) {
	for _, tag := range ts {
		if tag.Key() == key {
			return tag.Value(), true
		}
	}
	return "", false
}

// ContainsAll reports whether every (key, value) pair in required is
// present in the receiver.
func (ts Tags) ContainsAll(required Tags) bool {
	for _, want := range required {
		if !ts.contains(want) {
			return false
		}
	}
	return true
}

func (ts Tags) contains(want Tag) bool {
	for _, tag := range ts {
		if tag == want {
			return true
		}
	}
	return false
}
