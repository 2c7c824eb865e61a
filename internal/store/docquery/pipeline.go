package docquery

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AvishaiDotan/mongodb-functions/internal/store"
)

// Source loads every document of a collection in the same database. It is
// used by $lookup.
type Source func(collection string) ([]bson.M, error)

// Filter returns the documents of docs that match filter, stopping at limit
// when limit is positive.
func Filter(docs []bson.M, filter bson.M, limit int64) ([]bson.M, error) {
	out := make([]bson.M, 0)
	for _, doc := range docs {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		ok, err := Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Run evaluates pipeline over docs. Supported stages: $match, $limit, $skip,
// $sort, $lookup (localField/foreignField form), $unwind, $project, $count.
func Run(docs []bson.M, pipeline mongo.Pipeline, src Source) ([]bson.M, error) {
	cur := docs
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("%w: stage %d must have exactly one key", store.ErrUnsupported, i)
		}
		name, arg := stage[0].Key, stage[0].Value

		var err error
		switch name {
		case "$match":
			f, ok := AsM(arg)
			if !ok {
				return nil, fmt.Errorf("%w: $match needs a document", store.ErrUnsupported)
			}
			cur, err = Filter(cur, f, 0)
		case "$limit":
			n, ok := number(arg)
			if !ok || n < 0 {
				return nil, fmt.Errorf("%w: $limit needs a non-negative number", store.ErrUnsupported)
			}
			if int(n) < len(cur) {
				cur = cur[:int(n)]
			}
		case "$skip":
			n, ok := number(arg)
			if !ok || n < 0 {
				return nil, fmt.Errorf("%w: $skip needs a non-negative number", store.ErrUnsupported)
			}
			if int(n) >= len(cur) {
				cur = []bson.M{}
			} else {
				cur = cur[int(n):]
			}
		case "$sort":
			err = sortStage(cur, arg)
		case "$lookup":
			cur, err = lookupStage(cur, arg, src)
		case "$unwind":
			cur, err = unwindStage(cur, arg)
		case "$project":
			cur, err = projectStage(cur, arg)
		case "$count":
			field, ok := arg.(string)
			if !ok || field == "" {
				return nil, fmt.Errorf("%w: $count needs a field name", store.ErrUnsupported)
			}
			if len(cur) == 0 {
				cur = []bson.M{}
			} else {
				cur = []bson.M{{field: int32(len(cur))}}
			}
		default:
			return nil, fmt.Errorf("%w: stage %s", store.ErrUnsupported, name)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func lookupStage(docs []bson.M, arg any, src Source) ([]bson.M, error) {
	spec, ok := AsM(arg)
	if !ok {
		return nil, fmt.Errorf("%w: $lookup needs a document", store.ErrUnsupported)
	}
	from, _ := spec["from"].(string)
	localField, _ := spec["localField"].(string)
	foreignField, _ := spec["foreignField"].(string)
	as, _ := spec["as"].(string)
	if from == "" || localField == "" || foreignField == "" || as == "" {
		return nil, fmt.Errorf("%w: $lookup needs from, localField, foreignField and as", store.ErrUnsupported)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: $lookup without a source", store.ErrUnsupported)
	}
	foreign, err := src(from)
	if err != nil {
		return nil, fmt.Errorf("$lookup from %s: %w", from, err)
	}

	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		locals := Resolve(doc, localField)
		if len(locals) == 0 {
			locals = []any{nil}
		}
		joined := bson.A{}
		for _, f := range foreign {
			if anyIntersect(Resolve(f, foreignField), locals) {
				joined = append(joined, f)
			}
		}
		next := shallowCopy(doc)
		next[as] = joined
		out = append(out, next)
	}
	return out, nil
}

func anyIntersect(values, locals []any) bool {
	if len(values) == 0 {
		values = []any{nil}
	}
	for _, v := range values {
		for _, l := range locals {
			if Equal(v, l) {
				return true
			}
		}
	}
	return false
}

func unwindStage(docs []bson.M, arg any) ([]bson.M, error) {
	path, ok := arg.(string)
	if !ok {
		if spec, isDoc := AsM(arg); isDoc {
			path, ok = spec["path"].(string)
		}
	}
	if !ok || len(path) < 2 || path[0] != '$' {
		return nil, fmt.Errorf("%w: $unwind needs a $field path", store.ErrUnsupported)
	}
	field := path[1:]

	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		arr, isArr := asArray(doc[field])
		if !isArr {
			if v, present := doc[field]; present && v != nil {
				out = append(out, doc)
			}
			continue
		}
		for _, el := range arr {
			next := shallowCopy(doc)
			next[field] = el
			out = append(out, next)
		}
	}
	return out, nil
}

func projectStage(docs []bson.M, arg any) ([]bson.M, error) {
	spec, ok := AsM(arg)
	if !ok || len(spec) == 0 {
		return nil, fmt.Errorf("%w: $project needs a non-empty document", store.ErrUnsupported)
	}
	include := map[string]bool{}
	exclude := map[string]bool{}
	keepID := true
	for k, v := range spec {
		on := truthy(v)
		if k == "_id" {
			keepID = on
			continue
		}
		if on {
			include[k] = true
		} else {
			exclude[k] = true
		}
	}
	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("%w: $project cannot mix inclusion and exclusion", store.ErrUnsupported)
	}

	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		next := bson.M{}
		if len(include) > 0 {
			for k := range include {
				if v, present := doc[k]; present {
					next[k] = v
				}
			}
		} else {
			for k, v := range doc {
				if !exclude[k] && k != "_id" {
					next[k] = v
				}
			}
		}
		if id, present := doc["_id"]; present && keepID {
			next["_id"] = id
		}
		out = append(out, next)
	}
	return out, nil
}

func sortStage(docs []bson.M, arg any) error {
	var keys bson.D
	switch s := arg.(type) {
	case bson.D:
		keys = s
	default:
		m, ok := AsM(arg)
		if !ok {
			return fmt.Errorf("%w: $sort needs a document", store.ErrUnsupported)
		}
		for k, v := range m {
			keys = append(keys, bson.E{Key: k, Value: v})
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			dir, _ := number(key.Value)
			c, ok := Compare(docs[i][key.Key], docs[j][key.Key])
			if !ok || c == 0 {
				continue
			}
			if dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return v != nil
}

func shallowCopy(doc bson.M) bson.M {
	next := make(bson.M, len(doc)+1)
	for k, v := range doc {
		next[k] = v
	}
	return next
}
