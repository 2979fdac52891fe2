package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,127}$`)

// TableFromKey maps an export key to the table it belongs to. Exports are
// laid out as <table>/<any partitions>/<file>.parquet; anything else is
// not part of the lake.
func TableFromKey(key string) (string, bool) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if !strings.EqualFold(path.Ext(key), ".parquet") {
		return "", false
	}
	table, rest, found := strings.Cut(key, "/")
	if !found || rest == "" {
		return "", false
	}
	if ValidateTableName(table) != nil {
		return "", false
	}
	return table, true
}

// ValidateTableName accepts names that are safe to use as view names
// without quoting surprises.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}
