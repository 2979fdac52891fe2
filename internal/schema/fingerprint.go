package schema

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint is a BLAKE3 hash over the canonical table/column/FK listing.
// Two models with identical structure always share a fingerprint.
func (m *Model) Fingerprint() string {
	var b strings.Builder
	for _, table := range m.Tables() {
		b.WriteString("table:")
		b.WriteString(table.Name)
		if table.View {
			b.WriteString(":view")
		}
		b.WriteByte('\n')
		for _, column := range table.Columns {
			b.WriteString("  column:")
			b.WriteString(column.Name)
			b.WriteByte(':')
			b.WriteString(strings.ToUpper(column.Type))
			b.WriteByte(':')
			b.WriteString(strconv.FormatBool(column.Nullable))
			b.WriteByte(':')
			b.WriteString(strconv.FormatBool(column.PrimaryKey))
			b.WriteByte('\n')
		}
		for _, fk := range table.ForeignKeys {
			b.WriteString("  fk:")
			b.WriteString(fk.Column)
			b.WriteString("->")
			b.WriteString(fk.ReferencedTable)
			b.WriteByte('.')
			b.WriteString(fk.ReferencedColumn)
			b.WriteByte('\n')
		}
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
