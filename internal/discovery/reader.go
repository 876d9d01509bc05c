package discovery

import (
	"time"

	"github.com/snowops/discovery-agent/internal/snow"
)

// fieldReader tracks which keys a record constructor consumed so the rest
// can be collected into the Extra overflow instead of being dropped.
type fieldReader struct {
	rec  snow.Record
	used map[string]bool
}

func newFieldReader(rec snow.Record) *fieldReader {
	return &fieldReader{rec: rec, used: make(map[string]bool)}
}

func (r *fieldReader) String(key string) string {
	r.used[key] = true
	return asString(r.rec[key])
}

func (r *fieldReader) Bool(key string) bool {
	r.used[key] = true
	return asBool(r.rec[key])
}

func (r *fieldReader) BoolDefault(key string, def bool) bool {
	r.used[key] = true
	v, ok := r.rec[key]
	if !ok || asString(v) == "" {
		return def
	}
	return asBool(v)
}

func (r *fieldReader) Int(key string, def int) int {
	r.used[key] = true
	return asInt(r.rec[key], def)
}

func (r *fieldReader) Time(key string) time.Time {
	r.used[key] = true
	return ParseDateTime(asString(r.rec[key]))
}

// Extra returns every unconsumed field, stringified. Unknown fields are
// preserved here rather than silently discarded.
func (r *fieldReader) Extra() map[string]string {
	extra := make(map[string]string)
	for k, v := range r.rec {
		if r.used[k] {
			continue
		}
		extra[k] = asString(v)
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
