package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color string

func (c color) Validate() error {
	switch c {
	case "red", "green":
		return nil
	}
	return errors.New("unknown color")
}

func TestState_Merge(t *testing.T) {
	base := New(map[string]any{"a": 1, "b": "x"})

	t.Run("delta keys overwrite, others untouched", func(t *testing.T) {
		next := base.Merge(Delta{"b": "y", "c": true})
		assert.Equal(t, 1, LookupOr(next, "a", 0))
		assert.Equal(t, "y", LookupOr(next, "b", ""))
		assert.Equal(t, true, LookupOr(next, "c", false))
		assert.Equal(t, []string{"a", "b", "c"}, next.Keys())
	})

	t.Run("receiver is not modified", func(t *testing.T) {
		_ = base.Merge(Delta{"a": 2, "z": 0})
		assert.Equal(t, 1, LookupOr(base, "a", 0))
		assert.False(t, base.Has("z"))
		assert.Equal(t, 2, base.Len())
	})

	t.Run("empty delta keeps state", func(t *testing.T) {
		assert.True(t, base.Merge(Delta{}).Equal(base))
		assert.True(t, base.Merge(nil).Equal(base))
	})

	t.Run("zero value state merges", func(t *testing.T) {
		var s State
		s = s.Merge(Delta{"k": "v"})
		assert.Equal(t, "v", LookupOr(s, "k", ""))
	})
}

func TestState_MergeSequence(t *testing.T) {
	// merge(merge(s, d1), d2) equals s updated key by key with d1 then d2.
	s := New(map[string]any{"a": 1, "b": 2, "c": 3})
	d1 := Delta{"a": 10, "d": 4}
	d2 := Delta{"b": 20, "d": 40}

	got := s.Merge(d1).Merge(d2)

	want := s.Snapshot()
	for k, v := range d1 {
		want[k] = v
	}
	for k, v := range d2 {
		want[k] = v
	}
	assert.Equal(t, want, got.Snapshot())
	// a keeps d1's value because d2 does not mention it.
	assert.Equal(t, 10, LookupOr(got, "a", 0))
	assert.Equal(t, 3, LookupOr(got, "c", 0))
}

func TestLookup(t *testing.T) {
	s := New(map[string]any{"n": 3, "s": "str"})

	v, ok := Lookup[int](s, "n")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = Lookup[string](s, "n")
	assert.False(t, ok, "mistyped value")

	_, ok = Lookup[int](s, "missing")
	assert.False(t, ok)

	assert.Equal(t, "fallback", LookupOr(s, "missing", "fallback"))
}

func TestSchema(t *testing.T) {
	base := NewSchema("base",
		Of[string]("name"),
		Of[color]("color"),
		Optional(Of[int]("count")),
	)

	t.Run("required and names", func(t *testing.T) {
		assert.Equal(t, []string{"color", "name"}, base.Required())
		assert.Equal(t, []string{"name", "color", "count"}, base.Names())
	})

	t.Run("validate ok", func(t *testing.T) {
		st := New(map[string]any{"name": "n", "color": color("red"), "extra": 1})
		require.NoError(t, base.Validate(st))
	})

	t.Run("missing required", func(t *testing.T) {
		err := base.Validate(New(map[string]any{"name": "n"}))
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("wrong type", func(t *testing.T) {
		err := base.Validate(New(map[string]any{"name": 5, "color": color("red")}))
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("enum outside closed set", func(t *testing.T) {
		err := base.Validate(New(map[string]any{"name": "n", "color": color("blue")}))
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("unknown field", func(t *testing.T) {
		assert.ErrorIs(t, base.CheckValue("nope", 1), ErrUnknownField)
	})

	t.Run("derive", func(t *testing.T) {
		narrow := base.Without("narrow", "count").Extend("narrow", Of[bool]("flag"))
		assert.Equal(t, []string{"name", "color", "flag"}, narrow.Names())
		assert.True(t, base.Has("count"), "receiver unchanged")
		assert.False(t, base.Has("flag"))

		u := narrow.Union("u", NewSchema("x", Optional(Of[int]("count"))))
		assert.True(t, u.Has("count"))
		assert.Equal(t, "u", u.Name())
	})

	t.Run("project", func(t *testing.T) {
		st := New(map[string]any{"name": "n", "color": color("red"), "extra": 1})
		assert.Equal(t, Delta{"name": "n", "color": color("red")}, base.Project(st))
	})
}
