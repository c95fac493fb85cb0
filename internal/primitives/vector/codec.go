package vector

import "github.com/stratadb/strata/internal/value"

func encodeCollection(info CollectionInfo) value.Value {
	return value.Object{
		"name":      value.String(info.Name),
		"dimension": value.Int(int64(info.Config.Dimension)),
		"metric":    value.String(info.Config.Metric.String()),
		"dtype":     value.String(info.Config.Dtype.String()),
		"next_id":   value.Int(int64(info.NextID)),
	}
}

func decodeCollection(v value.Value) CollectionInfo {
	obj, ok := v.(value.Object)
	if !ok {
		return CollectionInfo{}
	}
	info := CollectionInfo{}
	if s, ok := obj["name"].(value.String); ok {
		info.Name = string(s)
	}
	if n, ok := obj["dimension"].(value.Int); ok {
		info.Config.Dimension = int(n)
	}
	if s, ok := obj["metric"].(value.String); ok {
		info.Config.Metric, _ = ParseDistanceMetric(string(s))
	}
	if s, ok := obj["dtype"].(value.String); ok {
		info.Config.Dtype, _ = ParseStorageDtype(string(s))
	}
	if n, ok := obj["next_id"].(value.Int); ok {
		info.NextID = uint64(n)
	}
	return info
}

func encodeEntry(id uint64, vec []float64, metadata value.Object, dtype StorageDtype) value.Value {
	if metadata == nil {
		metadata = value.Object{}
	}
	return value.Object{
		"id":       value.Int(int64(id)),
		"vector":   value.Bytes(packVector(vec, dtype)),
		"metadata": metadata,
	}
}

func decodeEntry(v value.Value, dtype StorageDtype, dimension int) VectorEntry {
	obj, ok := v.(value.Object)
	if !ok {
		return VectorEntry{}
	}
	e := VectorEntry{}
	if n, ok := obj["id"].(value.Int); ok {
		e.ID = uint64(n)
	}
	if b, ok := obj["vector"].(value.Bytes); ok {
		e.Vector = unpackVector([]byte(b), dtype, dimension)
	}
	if m, ok := obj["metadata"].(value.Object); ok {
		e.Metadata = m
	}
	return e
}
