package run

import (
	"time"

	"github.com/stratadb/strata/internal/value"
)

func encodeInfo(info Info) value.Value {
	return value.Object{
		"name":       value.String(info.Name),
		"status":     value.String(info.Status.String()),
		"created_at": value.Int(info.CreatedAt.UnixNano()),
		"updated_at": value.Int(info.UpdatedAt.UnixNano()),
	}
}

func decodeInfo(v value.Value) Info {
	obj, ok := v.(value.Object)
	if !ok {
		return Info{}
	}
	info := Info{}
	if s, ok := obj["name"].(value.String); ok {
		info.Name = string(s)
	}
	if s, ok := obj["status"].(value.String); ok {
		info.Status, _ = ParseStatus(string(s))
	}
	if n, ok := obj["created_at"].(value.Int); ok {
		info.CreatedAt = time.Unix(0, int64(n))
	}
	if n, ok := obj["updated_at"].(value.Int); ok {
		info.UpdatedAt = time.Unix(0, int64(n))
	}
	return info
}
