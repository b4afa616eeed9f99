package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName derives the table name of a model: snake_case, pluralized.
// Names ending in a digit are not pluralized.
// "Category" → "categories", "TestModel1Cached" → "test_model1_cacheds",
// "TestModel1" → "test_model1".
func TableName(model string) string {
	snake := CamelToSnake(model)
	if snake == "" || unicode.IsDigit(rune(snake[len(snake)-1])) {
		return snake
	}
	return inflection.Plural(snake)
}

// ForeignKeyColumn is the column that stores a to-one relation.
func ForeignKeyColumn(field string) string { return field + "_id" }

// CacheField is the companion set field of a cached many-to-many relation.
func CacheField(field string) string { return field + "_cache" }

// InheritFlag is the companion flag field of an inherited field.
func InheritFlag(field string) string { return "is_" + field + "_inherited" }

// InheritValue is the companion local-value field of an inherited field.
func InheritValue(field string) string { return field + "_value" }

// JoinTable is the link table of a many-to-many field on ownerTable.
func JoinTable(ownerTable, field string) string { return ownerTable + "_" + field }

// JoinColumn is the column of a link table that references model.
func JoinColumn(model string) string { return CamelToSnake(model) + "_id" }
