package gct

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/assaykit/assaykit/internal/matrix"
	"github.com/assaykit/assaykit/internal/table"
)

// Arrow layout: one record batch, one row per matrix row.
//
//	id            utf8     role=id
//	<row field>   utf8     role=row_meta   (one per row annotation)
//	<column id>   float64  role=data       col_meta.<field>=<value> per annotation
//
// Absent cells are nulls. Column annotation field order is kept in the schema
// metadata because field metadata is unordered.
const (
	roleKey         = "assaykit.role"
	roleID          = "id"
	roleRowMeta     = "row_meta"
	roleData        = "data"
	colMetaPrefix   = "col_meta."
	schemaFormatKey = "assaykit.format"
	schemaFormat    = "matrix/1"
	colFieldsKey    = "assaykit.col_meta_fields"
	dimsKey         = "assaykit.dims"
)

// WriteArrow writes r as an Arrow IPC file with zstd-compressed buffers.
func WriteArrow(w io.Writer, r *matrix.Result) error {
	mem := memory.NewGoAllocator()
	schema, err := arrowSchema(r)
	if err != nil {
		return err
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	nRowMeta := len(r.RowMeta.Fields)
	idb := b.Field(0).(*array.StringBuilder)
	for i, id := range r.RowIDs {
		idb.Append(id)
		for k, v := range r.RowMeta.Record(i) {
			sb := b.Field(1 + k).(*array.StringBuilder)
			if v.Valid {
				sb.Append(v.S)
			} else {
				sb.AppendNull()
			}
		}
		for j, c := range r.Data[i] {
			fb := b.Field(1 + nRowMeta + j).(*array.Float64Builder)
			if c.Present {
				fb.Append(c.Value)
			} else {
				fb.AppendNull()
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem), ipc.WithZstd())
	if err != nil {
		return fmt.Errorf("arrow: open writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("arrow: write record: %w", err)
	}
	return fw.Close()
}

func arrowSchema(r *matrix.Result) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, 1+len(r.RowMeta.Fields)+len(r.ColIDs))
	fields = append(fields, arrow.Field{
		Name:     "id",
		Type:     arrow.BinaryTypes.String,
		Metadata: arrow.NewMetadata([]string{roleKey}, []string{roleID}),
	})
	for _, f := range r.RowMeta.Fields {
		fields = append(fields, arrow.Field{
			Name:     f,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{roleKey}, []string{roleRowMeta}),
		})
	}
	for _, id := range r.ColIDs {
		keys := []string{roleKey}
		vals := []string{roleData}
		for _, f := range r.ColMeta.Fields {
			if v, _ := r.ColMeta.Get(id, f); v.Valid {
				keys = append(keys, colMetaPrefix+f)
				vals = append(vals, v.S)
			}
		}
		fields = append(fields, arrow.Field{
			Name:     id,
			Type:     arrow.PrimitiveTypes.Float64,
			Nullable: true,
			Metadata: arrow.NewMetadata(keys, vals),
		})
	}

	colFields := r.ColMeta.Fields
	if colFields == nil {
		colFields = []string{}
	}
	encoded, err := json.Marshal(colFields)
	if err != nil {
		return nil, err
	}
	cols, rows := r.Dims()
	md := arrow.NewMetadata(
		[]string{schemaFormatKey, colFieldsKey, dimsKey},
		[]string{schemaFormat, string(encoded), fmt.Sprintf("%dx%d", cols, rows)},
	)
	return arrow.NewSchema(fields, &md), nil
}

// ReadArrow reads a matrix written by WriteArrow.
func ReadArrow(rs ipc.ReadAtSeeker) (*matrix.Result, error) {
	fr, err := ipc.NewFileReader(rs, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("arrow: open reader: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	smd := schema.Metadata()
	if v, ok := lookup(smd, schemaFormatKey); !ok || v != schemaFormat {
		return nil, fmt.Errorf("arrow: not a matrix file (format %q)", v)
	}
	var colFields []string
	if raw, ok := lookup(smd, colFieldsKey); ok {
		if err := json.Unmarshal([]byte(raw), &colFields); err != nil {
			return nil, fmt.Errorf("arrow: column annotation fields: %w", err)
		}
	}

	var rowFields, colIDs []string
	var rowPos, dataPos []int
	idPos := -1
	for i, f := range schema.Fields() {
		role, _ := lookup(f.Metadata, roleKey)
		switch role {
		case roleID:
			idPos = i
		case roleRowMeta:
			rowFields = append(rowFields, f.Name)
			rowPos = append(rowPos, i)
		case roleData:
			colIDs = append(colIDs, f.Name)
			dataPos = append(dataPos, i)
		default:
			return nil, fmt.Errorf("arrow: field %q has unknown role %q", f.Name, role)
		}
	}
	if idPos < 0 {
		return nil, fmt.Errorf("arrow: no id column")
	}

	colVals := make([][]table.Value, len(colIDs))
	for j, pos := range dataPos {
		md := schema.Field(pos).Metadata
		rec := make([]table.Value, len(colFields))
		for k, f := range colFields {
			if v, ok := lookup(md, colMetaPrefix+f); ok {
				rec[k] = table.Str(v)
			}
		}
		colVals[j] = rec
	}

	var rowIDs []string
	var rowVals [][]table.Value
	var data [][]matrix.Cell
	for n := 0; n < fr.NumRecords(); n++ {
		rec, err := fr.Record(n)
		if err != nil {
			return nil, fmt.Errorf("arrow: record %d: %w", n, err)
		}
		ids, ok := rec.Column(idPos).(*array.String)
		if !ok {
			return nil, fmt.Errorf("arrow: id column is %s", rec.Column(idPos).DataType())
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			rowIDs = append(rowIDs, ids.Value(i))
			meta := make([]table.Value, len(rowPos))
			for k, pos := range rowPos {
				col, ok := rec.Column(pos).(*array.String)
				if !ok {
					return nil, fmt.Errorf("arrow: row annotation %q is %s", rowFields[k], rec.Column(pos).DataType())
				}
				if col.IsValid(i) {
					meta[k] = table.Str(col.Value(i))
				}
			}
			rowVals = append(rowVals, meta)
			cells := make([]matrix.Cell, len(dataPos))
			for j, pos := range dataPos {
				col, ok := rec.Column(pos).(*array.Float64)
				if !ok {
					return nil, fmt.Errorf("arrow: data column %q is %s", colIDs[j], rec.Column(pos).DataType())
				}
				if col.IsValid(i) {
					cells[j] = matrix.Of(col.Value(i))
				}
			}
			data = append(data, cells)
		}
	}

	rowMeta, err := matrix.NewAnnotations(rowIDs, rowFields, rowVals)
	if err != nil {
		return nil, fmt.Errorf("arrow: %w", err)
	}
	colMeta, err := matrix.NewAnnotations(colIDs, colFields, colVals)
	if err != nil {
		return nil, fmt.Errorf("arrow: %w", err)
	}
	return matrix.NewResult(rowIDs, colIDs, data, rowMeta, colMeta)
}

// ArrowDims reads the dimensions recorded in an Arrow matrix schema without
// decoding the data.
func ArrowDims(rs ipc.ReadAtSeeker) (cols, rows int, err error) {
	fr, err := ipc.NewFileReader(rs)
	if err != nil {
		return 0, 0, err
	}
	defer fr.Close()
	v, ok := lookup(fr.Schema().Metadata(), dimsKey)
	if !ok {
		return 0, 0, fmt.Errorf("arrow: no dimensions recorded")
	}
	c, r, found := strings.Cut(v, "x")
	if !found {
		return 0, 0, fmt.Errorf("arrow: bad dimensions %q", v)
	}
	if cols, err = strconv.Atoi(c); err != nil {
		return 0, 0, err
	}
	if rows, err = strconv.Atoi(r); err != nil {
		return 0, 0, err
	}
	return cols, rows, nil
}

func lookup(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}
