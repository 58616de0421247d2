package archive

import (
	"errors"
	"fmt"

	"github.com/cubeice/ice/internal/engine"
)

// PropertyAccessor reads typed entry metadata from an open handle. Every
// read goes to the handle; nothing is cached.
type PropertyAccessor struct {
	handle engine.Reader
}

func NewPropertyAccessor(handle engine.Reader) *PropertyAccessor {
	return &PropertyAccessor{handle: handle}
}

// Count returns the number of entries in the handle.
func (a *PropertyAccessor) Count() int {
	return a.handle.EntryCount()
}

// Get returns the raw tagged value of a property.
func (a *PropertyAccessor) Get(index int, id engine.PropID) (engine.Value, error) {
	if err := engine.CheckIndex(index, a.handle.EntryCount()); err != nil {
		return engine.Value{}, err
	}
	v, err := a.handle.Property(index, id)
	if err != nil {
		return engine.Value{}, fmt.Errorf("failed to read %s of entry %d: %w", id, index, err)
	}
	return v, nil
}

// String reads a property that must be stored as a string.
func (a *PropertyAccessor) String(index int, id engine.PropID) (string, error) {
	return project(a, index, id, engine.Value.AsString)
}

// Bool reads a property that must be stored as a bool.
func (a *PropertyAccessor) Bool(index int, id engine.PropID) (bool, error) {
	return project(a, index, id, engine.Value.AsBool)
}

// Int64 reads a property that must be stored as a 64-bit integer.
func (a *PropertyAccessor) Int64(index int, id engine.PropID) (int64, error) {
	return project(a, index, id, engine.Value.AsInt64)
}

// OptionalBool is like Bool but reports ok=false when the codec has no value.
func (a *PropertyAccessor) OptionalBool(index int, id engine.PropID) (value bool, ok bool, err error) {
	return optional(a, index, id, engine.Value.AsBool)
}

// OptionalInt64 is like Int64 but reports ok=false when the codec has no value.
func (a *PropertyAccessor) OptionalInt64(index int, id engine.PropID) (value int64, ok bool, err error) {
	return optional(a, index, id, engine.Value.AsInt64)
}

func project[T any](a *PropertyAccessor, index int, id engine.PropID, as func(engine.Value) (T, error)) (T, error) {
	v, err := a.Get(index, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(index, id, v, as)
}

func optional[T any](a *PropertyAccessor, index int, id engine.PropID, as func(engine.Value) (T, error)) (T, bool, error) {
	var zero T
	v, err := a.Get(index, id)
	if err != nil || v.IsEmpty() {
		return zero, false, err
	}
	out, err := decode(index, id, v, as)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func decode[T any](index int, id engine.PropID, v engine.Value, as func(engine.Value) (T, error)) (T, error) {
	out, err := as(v)
	if err != nil {
		var mismatch *engine.TypeMismatchError
		if errors.As(err, &mismatch) {
			mismatch.Property = id.String()
		}
		return out, fmt.Errorf("entry %d: %w", index, err)
	}
	return out, nil
}
