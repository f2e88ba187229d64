package cel

import (
	"path/filepath"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
)

// NewDocumentEnvironment creates the CEL environment collection filters are
// compiled in. It declares:
//   - doc: the document's field map
//   - id: the document id (last path segment)
//   - path: the full document path
//   - update_time: the document's last write time
//   - glob(pattern, s): filepath-style pattern matching
//   - field_or(doc, name, default): field lookup with a fallback
func NewDocumentEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),
		cel.CrossTypeNumericComparisons(true),

		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("id", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("update_time", cel.TimestampType),

		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, s ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					v, ok2 := s.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := filepath.Match(p, v)
					return types.Bool(matched)
				}),
			),
		),

		// field_or(doc, "status", "draft") avoids has() guards on sparse
		// documents.
		cel.Function("field_or",
			cel.Overload("field_or_map_string_dyn",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType, cel.DynType},
				cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					key, ok := args[1].Value().(string)
					if !ok {
						return args[2]
					}
					switch m := args[0].Value().(type) {
					case map[string]any:
						if v, found := m[key]; found {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					case document.Data:
						if v, found := m[key]; found {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					case map[ref.Val]ref.Val:
						if v, found := m[types.String(key)]; found {
							return v
						}
					}
					return args[2]
				}),
			),
		),
	)
}

// BuildActivation creates the CEL activation for one document.
func BuildActivation(doc document.Document) map[string]any {
	data := map[string]any(doc.Data)
	if data == nil {
		data = map[string]any{}
	}
	updated := doc.UpdateTime
	if updated.IsZero() {
		updated = time.Unix(0, 0).UTC()
	}
	return map[string]any{
		"doc":         data,
		"id":          doc.Ref.ID(),
		"path":        doc.Ref.Path(),
		"update_time": updated,
	}
}
