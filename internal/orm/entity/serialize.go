package entity

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// ToJSON projects the declared fields and relation properties of e whose
// values are JSON representable. Unset properties are skipped. A value that
// cannot be represented is logged as a warning and omitted. Times are
// projected as RFC 3339 strings and nested entities as objects.
func ToJSON(e schema.Entity) map[string]any {
	md := e.Metadata()
	out := make(map[string]any, len(md.Fields)+len(md.OneToManyRelations))

	project := func(property string) {
		v, ok := e.Get(property)
		if !ok {
			return
		}
		projected, ok := jsonValue(v)
		if !ok {
			zap.L().Named("entity").Warn("value is not JSON representable, field omitted",
				zap.String("table", md.TableName),
				zap.String("property", property),
				zap.String("type", fmt.Sprintf("%T", v)))
			return
		}
		out[property] = projected
	}

	for _, f := range md.Fields {
		project(f.PropertyName)
	}
	for _, rel := range md.OneToManyRelations {
		project(rel.PropertyName)
	}
	return out
}

func jsonValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, true
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), true
	case uuid.UUID:
		return val.String(), true
	case schema.Entity:
		return ToJSON(val), true
	case []schema.Entity:
		items := make([]any, 0, len(val))
		for _, e := range val {
			items = append(items, ToJSON(e))
		}
		return items, true
	case []any:
		items := make([]any, 0, len(val))
		for _, item := range val {
			p, ok := jsonValue(item)
			if !ok {
				return nil, false
			}
			items = append(items, p)
		}
		return items, true
	case []string:
		return append([]string(nil), val...), true
	case []int64:
		return append([]int64(nil), val...), true
	case []int:
		return append([]int(nil), val...), true
	case []float64:
		return append([]float64(nil), val...), true
	case []bool:
		return append([]bool(nil), val...), true
	case map[string]any:
		obj := make(map[string]any, len(val))
		for k, item := range val {
			p, ok := jsonValue(item)
			if !ok {
				return nil, false
			}
			obj[k] = p
		}
		return obj, true
	default:
		return nil, false
	}
}

func marshalProjection(e schema.Entity) ([]byte, error) {
	return json.Marshal(ToJSON(e))
}

// Clone returns a deep independent copy of e built with the metadata's
// entity factory. Nested entities are cloned with their own factories.
func Clone(e schema.Entity) (schema.Entity, error) {
	md := e.Metadata()
	if md == nil || md.CreateEntity == nil {
		return nil, ormerr.ErrNotCloneable
	}

	dto := make(map[string]any)
	for _, property := range e.Properties() {
		v, _ := e.Get(property)
		copied, err := DeepCopy(v)
		if err != nil {
			return nil, err
		}
		dto[property] = copied
	}
	return md.CreateEntity(md, dto), nil
}

// DeepCopy returns a copy of v sharing no slice or map with it. Entities
// are cloned; other slices and maps are copied element by element.
func DeepCopy(v any) (any, error) {
	switch val := v.(type) {
	case schema.Entity:
		return Clone(val)
	case []schema.Entity:
		items := make([]schema.Entity, 0, len(val))
		for _, e := range val {
			c, err := Clone(e)
			if err != nil {
				return nil, err
			}
			items = append(items, c)
		}
		return items, nil
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			c, err := DeepCopy(item)
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		return items, nil
	case map[string]any:
		obj := make(map[string]any, len(val))
		for k, item := range val {
			c, err := DeepCopy(item)
			if err != nil {
				return nil, err
			}
			obj[k] = c
		}
		return obj, nil
	case []string:
		return append([]string(nil), val...), nil
	case []int64:
		return append([]int64(nil), val...), nil
	case []int:
		return append([]int(nil), val...), nil
	case []float64:
		return append([]float64(nil), val...), nil
	case []bool:
		return append([]bool(nil), val...), nil
	case []byte:
		return append([]byte(nil), val...), nil
	case nil:
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v, nil
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			c, err := DeepCopy(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			if c != nil {
				out.Index(i).Set(reflect.ValueOf(c))
			}
		}
		return out.Interface(), nil
	case reflect.Map:
		if rv.IsNil() {
			return v, nil
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			c, err := DeepCopy(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			value := reflect.Zero(rv.Type().Elem())
			if c != nil {
				value = reflect.ValueOf(c)
			}
			out.SetMapIndex(iter.Key(), value)
		}
		return out.Interface(), nil
	default:
		return v, nil
	}
}

// ToRow converts e into a row keyed by column name for writing. Unset
// properties are left out, related entities are replaced by their id and
// JSON typed values are marshalled.
func ToRow(e schema.Entity) (map[string]any, error) {
	md := e.Metadata()
	row := make(map[string]any, len(md.Fields))

	for _, f := range md.Fields {
		v, ok := e.Get(f.PropertyName)
		if !ok {
			continue
		}

		switch {
		case f.FieldType == schema.FieldJoinedEntity:
			id, err := ReferenceID(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", md.TableName, f.PropertyName, err)
			}
			row[f.ColumnName] = id
		case f.ValueType == schema.TypeJSON && v != nil:
			switch v.(type) {
			case string, []byte:
				row[f.ColumnName] = v
			default:
				data, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("%w: %s.%s: %v", ormerr.ErrInvalidEntity, md.TableName, f.PropertyName, err)
				}
				row[f.ColumnName] = string(data)
			}
		default:
			row[f.ColumnName] = v
		}
	}
	return row, nil
}

// UniformIDs fails with ErrInvalidEntity when some rows carry an id and
// others leave it to be generated
func UniformIDs(md *schema.EntityMetadata, rows []map[string]any) error {
	col := md.IDColumnName()
	without := 0
	for _, row := range rows {
		if row[col] == nil {
			without++
		}
	}
	if without > 0 && without < len(rows) {
		return fmt.Errorf("%w: %d of %d %s rows carry no %s; give every row an id or none",
			ormerr.ErrInvalidEntity, without, len(rows), md.TableName, col)
	}
	return nil
}

// ReferenceID returns the value written to a join column: the id of a
// related entity, or the value itself when it already is a key
func ReferenceID(v any) (any, error) {
	ref, ok := v.(schema.Entity)
	if !ok {
		return v, nil
	}
	id, ok := ref.Get(ref.Metadata().IDPropertyName)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: related %s entity has no id", ormerr.ErrIDNotFound, ref.Metadata().TableName)
	}
	return id, nil
}
