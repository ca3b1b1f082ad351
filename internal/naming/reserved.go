package naming

import "strings"

// reservedPropertyWords collide with filter combinator keys.
var reservedPropertyWords = map[string]bool{
	"and": true,
	"or":  true,
	"not": true,
}

// isReservedPropertyName checks if a property name is reserved. Names with a
// leading double underscore are used for internal result aliases.
func isReservedPropertyName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	return reservedPropertyWords[lowerName]
}
