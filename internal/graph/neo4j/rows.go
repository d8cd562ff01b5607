package neo4j

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// flattenRecord turns a record into a column map. Nodes are reduced to their
// uri property under "<column>.uri"; every other value passes through.
func flattenRecord(rec *neo4j.Record) map[string]any {
	row := make(map[string]any, len(rec.Keys))
	for i, key := range rec.Keys {
		var v any
		if i < len(rec.Values) {
			v = rec.Values[i]
		}
		switch n := v.(type) {
		case neo4j.Node:
			row[key+".uri"] = n.Props["uri"]
		case *neo4j.Node:
			if n == nil {
				row[key] = nil
				continue
			}
			row[key+".uri"] = n.Props["uri"]
		default:
			row[key] = v
		}
	}
	return row
}
