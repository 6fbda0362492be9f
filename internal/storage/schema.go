package storage

import "accesslog/internal/record"

// ColumnType is a backend-neutral column type; each backend maps it to SQL.
type ColumnType int

const (
	TypeIdentity  ColumnType = iota // sink-generated primary key
	TypeString                      // bounded string, Column.Size characters
	TypeText                        // unbounded string
	TypeTimestamp                   // timezone-aware instant
	TypeInt                         // 32-bit integer
	TypeBigInt                      // 64-bit integer
)

// Column is one column of a TableDef.
type Column struct {
	Name string
	Type ColumnType
	Size int
}

// TableDef describes a table to create.
type TableDef struct {
	Name    string
	Columns []Column
}

// IdentityColumn is the sink-generated key column of the access log table.
const IdentityColumn = "id"

// AccessLogTable returns the fixed definition of the access log table.
func AccessLogTable(name string) TableDef {
	return TableDef{
		Name: name,
		Columns: []Column{
			{Name: IdentityColumn, Type: TypeIdentity},
			{Name: record.ColClientAddress, Type: TypeString, Size: 255},
			{Name: record.ColTimestamp, Type: TypeTimestamp},
			{Name: record.ColMethod, Type: TypeString, Size: 10},
			{Name: record.ColURL, Type: TypeText},
			{Name: record.ColStatusCode, Type: TypeInt},
			{Name: record.ColResponseSize, Type: TypeBigInt},
			{Name: record.ColQueryParameters, Type: TypeText},
		},
	}
}
