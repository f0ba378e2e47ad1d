package irc

import (
	"fmt"
	"reflect"
)

// ErrUnknownModeFlag is returned when a mode character has no
// corresponding flag. Handlers match it to pick the numeric reply.
var ErrUnknownModeFlag = fmt.Errorf("unknown mode flag")

// UserMode holds the per-user mode flags. The mode tag on each field is
// the character MODE addresses it by.
type UserMode struct {
	Invisible bool `mode:"i" desc:"invisible - hidden from WHO queries by non-members"`
	Operator  bool `mode:"o" desc:"IRC operator - granted through OPER only"`
}

// ApplyMode sets or clears the flag for one mode character. It returns
// ErrUnknownModeFlag when no flag carries that character.
func (m *UserMode) ApplyMode(mode rune, value bool) error {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if typ.Field(i).Tag.Get("mode") == string(mode) {
			val.Field(i).SetBool(value)
			return nil
		}
	}
	return fmt.Errorf("%w: %c", ErrUnknownModeFlag, mode)
}

// HasMode reports whether the flag for the given mode character is set.
// Unknown characters report false.
func (m *UserMode) HasMode(mode rune) bool {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if typ.Field(i).Tag.Get("mode") == string(mode) {
			return val.Field(i).Bool()
		}
	}
	return false
}

// String returns the compact mode summary ("+io"), or the empty string
// when no flag is set.
func (m *UserMode) String() string {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	flags := "+"
	for i := 0; i < val.NumField(); i++ {
		if val.Field(i).Bool() {
			flags += typ.Field(i).Tag.Get("mode")
		}
	}
	if flags == "+" {
		return ""
	}
	return flags
}
