// Package draft keeps a listing draft in memory and mirrors it to the backend incrementally.
package draft

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/roomiegr/roomie/internal/model"
)

// fieldPair links a DraftPatch field to the ListingDraft field with the same key.
type fieldPair struct {
	key    string // json name
	column string // "" for local-only fields
	patch  int
	draft  int
}

var pairs = buildPairs()

func buildPairs() []fieldPair {
	dt := reflect.TypeOf(model.ListingDraft{})
	pt := reflect.TypeOf(model.DraftPatch{})

	byKey := make(map[string]int, dt.NumField())
	for i := 0; i < dt.NumField(); i++ {
		byKey[jsonName(dt.Field(i))] = i
	}

	out := make([]fieldPair, 0, pt.NumField())
	for i := 0; i < pt.NumField(); i++ {
		f := pt.Field(i)
		key := jsonName(f)
		if key == "-" {
			continue
		}
		di, ok := byKey[key]
		if !ok {
			panic(fmt.Sprintf("draft: patch field %q has no draft counterpart", key))
		}
		col := f.Tag.Get("db")
		if col == "-" {
			col = ""
		}
		out = append(out, fieldPair{key: key, column: col, patch: i, draft: di})
	}
	return out
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// Merge applies the patch on top of prev. It returns the merged draft and the persisted columns
// whose values actually changed. Local-only fields are merged but never reported. Keys in
// p.Clear without a value reset the field: pointers to nil, strings to "", lists to empty.
func Merge(prev model.ListingDraft, p model.DraftPatch) (model.ListingDraft, model.DraftChanges) {
	next := prev
	changed := model.DraftChanges{}

	pv := reflect.ValueOf(p)
	nv := reflect.ValueOf(&next).Elem()
	for _, fp := range pairs {
		src := pv.Field(fp.patch)
		dst := nv.Field(fp.draft)
		var val reflect.Value
		switch {
		case !src.IsNil():
			val = detach(src, dst.Type())
		case slices.Contains(p.Clear, fp.key):
			val = cleared(dst.Type())
		default:
			continue
		}
		if equal(dst, val) {
			continue
		}
		dst.Set(val)
		if fp.column == "" {
			continue
		}
		if val.Kind() == reflect.Pointer && val.IsNil() {
			changed[fp.column] = nil
		} else {
			changed[fp.column] = val.Interface()
		}
	}
	return next, changed
}

// Keys lists the column names of a change set; used for logging.
func Keys(c model.DraftChanges) []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

// detach converts a non-nil patch value to the draft field type without sharing memory with the
// caller's patch.
func detach(src reflect.Value, to reflect.Type) reflect.Value {
	if src.Type() == to {
		// pointer field on both sides (*int, *bool, *time.Time)
		cp := reflect.New(to.Elem())
		cp.Elem().Set(src.Elem())
		return cp
	}
	elem := src.Elem()
	if elem.Kind() == reflect.Slice {
		cp := reflect.MakeSlice(elem.Type(), elem.Len(), elem.Len())
		reflect.Copy(cp, elem)
		return cp
	}
	return elem
}

// cleared is the reset value of a draft field. Lists stay non-nil so array columns get '{}'.
func cleared(t reflect.Type) reflect.Value {
	if t.Kind() == reflect.Slice {
		return reflect.MakeSlice(t, 0, 0)
	}
	return reflect.Zero(t)
}

var timePtr = reflect.TypeOf((*time.Time)(nil))

func equal(a, b reflect.Value) bool {
	switch {
	case a.Kind() == reflect.Slice:
		if a.Len() == 0 && b.Len() == 0 {
			return true
		}
	case a.Type() == timePtr:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return a.Interface().(*time.Time).Equal(*b.Interface().(*time.Time))
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}
