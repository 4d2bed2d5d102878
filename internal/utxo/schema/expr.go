package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a rendered SQL expression built from validated parts.
type Expr string

// Ident references a column of the current scope.
func Ident(name string) (Expr, error) {
	if err := ValidIdent(name); err != nil {
		return "", err
	}
	return Expr(name), nil
}

// MustIdent is Ident for names fixed at compile time.
func MustIdent(name string) Expr {
	e, err := Ident(name)
	if err != nil {
		panic(err)
	}
	return e
}

// Qualified references column of table (or subquery alias) scope.
func Qualified(scope, column string) (Expr, error) {
	if err := ValidIdent(scope); err != nil {
		return "", err
	}
	if err := ValidIdent(column); err != nil {
		return "", err
	}
	return Expr(scope + "." + column), nil
}

// Int renders an integer literal.
func Int(v int64) Expr {
	return Expr(strconv.FormatInt(v, 10))
}

// Hex renders an unsigned hexadecimal literal.
func Hex(v uint64) Expr {
	return Expr("0x" + strconv.FormatUint(v, 16))
}

// Enum renders a quoted enum value; the value must be a valid identifier.
func Enum(value string) (Expr, error) {
	if err := ValidIdent(value); err != nil {
		return "", err
	}
	return Expr("'" + value + "'"), nil
}

// HashList renders a tuple of validated hashes for IN clauses.
func HashList(hashes []string) (Expr, error) {
	if len(hashes) == 0 {
		return "", fmt.Errorf("%w: empty hash list", ErrInvalidValue)
	}
	if err := ValidHashes(hashes); err != nil {
		return "", err
	}
	quoted := make([]string, len(hashes))
	for i, h := range hashes {
		quoted[i] = "'" + h + "'"
	}
	return Expr("(" + strings.Join(quoted, ", ") + ")"), nil
}

// Call renders fn(args...).
func Call(fn string, args ...Expr) Expr {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = string(a)
	}
	return Expr(fn + "(" + strings.Join(parts, ", ") + ")")
}

// Binary renders (left op right).
func Binary(left Expr, op string, right Expr) Expr {
	return Expr("(" + string(left) + " " + op + " " + string(right) + ")")
}
