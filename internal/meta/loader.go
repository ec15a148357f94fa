package meta

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadError reports a problem loading or decoding doctype definitions.
type LoadError struct {
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// LoadDir loads doctype definitions from all CUE files in a directory and
// returns a StaticProvider over them.
//
// Definitions take the shape:
//
//	doctype: "ToDo": {
//		sort_field: "modified"
//		sort_order: "desc"
//		fields: [
//			{fieldname: "status", fieldtype: "Select"},
//			{fieldname: "allocated_to", fieldtype: "Link", options: "User"},
//		]
//	}
func LoadDir(dir string) (*StaticProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("doctype directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	return DecodeProvider(value)
}

// DecodeProvider decodes all doctype definitions under the "doctype" path
// of a CUE value.
func DecodeProvider(value cue.Value) (*StaticProvider, error) {
	provider := NewStaticProvider()

	doctypes := value.LookupPath(cue.ParsePath("doctype"))
	if !doctypes.Exists() {
		return nil, &LoadError{Message: "no doctype definitions found", Pos: value.Pos()}
	}

	iter, err := doctypes.Fields()
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("iterating doctypes: %v", err), Pos: doctypes.Pos()}
	}
	for iter.Next() {
		dt, err := decodeDoctype(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		provider.Add(dt)
	}
	return provider, nil
}

// decodeDoctype decodes a single doctype struct.
func decodeDoctype(name string, v cue.Value) (*Doctype, error) {
	if err := v.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("doctype %s: %v", name, err), Pos: v.Pos()}
	}

	var fields []Field
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		list, err := fieldsVal.List()
		if err != nil {
			return nil, &LoadError{Message: fmt.Sprintf("doctype %s: fields must be a list: %v", name, err), Pos: fieldsVal.Pos()}
		}
		for list.Next() {
			f, err := decodeField(name, list.Value())
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
	}

	dt, err := NewDoctype(name, fields)
	if err != nil {
		return nil, &LoadError{Message: err.Error(), Pos: v.Pos()}
	}

	dt.SortField = lookupString(v, "sort_field")
	dt.SortOrder = lookupString(v, "sort_order")
	dt.IsTree = lookupBool(v, "is_tree")
	dt.IsChild = lookupBool(v, "is_child")
	return dt, nil
}

// decodeField decodes a single field definition struct.
func decodeField(doctype string, v cue.Value) (Field, error) {
	fieldname := lookupString(v, "fieldname")
	if fieldname == "" {
		return Field{}, &LoadError{Message: fmt.Sprintf("doctype %s: field missing fieldname", doctype), Pos: v.Pos()}
	}
	fieldtype := lookupString(v, "fieldtype")
	if fieldtype == "" {
		return Field{}, &LoadError{Message: fmt.Sprintf("doctype %s: field %s missing fieldtype", doctype, fieldname), Pos: v.Pos()}
	}

	f := Field{
		Fieldname:             fieldname,
		Fieldtype:             FieldType(fieldtype),
		Options:               lookupString(v, "options"),
		IgnoreUserPermissions: lookupBool(v, "ignore_user_permissions"),
		NotNullable:           lookupBool(v, "not_nullable"),
	}
	if pl := v.LookupPath(cue.ParsePath("permlevel")); pl.Exists() {
		n, err := pl.Int64()
		if err != nil {
			return Field{}, &LoadError{Message: fmt.Sprintf("doctype %s: field %s: permlevel: %v", doctype, fieldname, err), Pos: pl.Pos()}
		}
		f.Permlevel = int(n)
	}
	if f.Fieldtype.IsTable() || f.Fieldtype == TypeLink {
		if f.Options == "" {
			return Field{}, &LoadError{
				Message: fmt.Sprintf("doctype %s: field %s: %s fields require options", doctype, fieldname, fieldtype),
				Pos:     v.Pos(),
			}
		}
	}
	return f, nil
}

func lookupString(v cue.Value, path string) string {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return ""
	}
	s, err := val.String()
	if err != nil {
		return ""
	}
	return s
}

func lookupBool(v cue.Value, path string) bool {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return false
	}
	b, err := val.Bool()
	if err != nil {
		return false
	}
	return b
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
