// Package naming defines how simulation elements are named.
package naming

import (
	"strings"
	"unicode"
)

// Named describes an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// PathSeparator joins the names of nested modules into a path.
const PathSeparator = "."

// SelectorNegation marks a logging selector token as "force off".
const SelectorNegation = "!"

// SelectorSeparator separates the tokens of a logging selector.
const SelectorSeparator = ","

// NameMustBeValid panics if the name cannot be used as a module name. A module
// name is used as a token of logging selectors and as an element of a module
// path, so it must follow a few rules.
//  1. It must not be empty.
//  2. It must not contain a path separator ("."), a selector separator (","),
//     or a negation mark ("!").
//  3. It must not contain quotes or white spaces.
func NameMustBeValid(name string) {
	if name == "" {
		panic("Name must not be empty")
	}

	invalidChars := []string{
		PathSeparator, SelectorSeparator, SelectorNegation, "\"", "'",
	}

	for _, c := range invalidChars {
		if strings.Contains(name, c) {
			panic("Name " + name + " is not valid: must not contain " + c)
		}
	}

	for _, r := range name {
		if unicode.IsSpace(r) {
			panic("Name " + name + " is not valid: must not contain spaces")
		}
	}
}

// BuildName builds a path from a parent path and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + PathSeparator + elementName
}
