package models

import "encoding/json"

// Optional distinguishes an omitted field from one explicitly set, including
// set to its zero value. Decoding JSON marks the field Set whenever its key is
// present, even for null.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// UserPatch lists the fields of a partial user update. Unset fields are left
// untouched by the store.
type UserPatch struct {
	UserName     Optional[string]
	PasswordHash Optional[string]
	Bio          Optional[string]
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return !p.UserName.Set && !p.PasswordHash.Set && !p.Bio.Set
}
