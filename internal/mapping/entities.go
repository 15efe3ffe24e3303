package mapping

// copyFields copies the named keys that are present and non-null.
func copyFields(dst, record map[string]any, names ...string) {
	for _, name := range names {
		if v, ok := record[name]; ok && v != nil {
			dst[name] = v
		}
	}
}

// nested reads record[obj][field] from an embedded object.
func nested(record map[string]any, obj, field string) (any, bool) {
	m, ok := record[obj].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok && v != nil
}

func transformListing(record map[string]any) map[string]any {
	doc := make(map[string]any)
	copyFields(doc, record,
		"title", "description", "price", "currency", "status",
		"city", "country", "category_id", "seller_id",
		"views_count", "favorites_count", "created_at", "updated_at")

	if v, ok := nested(record, "category", "name"); ok {
		doc["category_name"] = v
	}
	if v, ok := nested(record, "seller", "display_name"); ok {
		doc["seller_name"] = v
	}
	if _, ok := doc["views_count"]; !ok {
		doc["views_count"] = int64(0)
	}
	return doc
}

func transformProfile(record map[string]any) map[string]any {
	doc := make(map[string]any)
	copyFields(doc, record,
		"display_name", "username", "bio", "city", "country",
		"listings_count", "rating", "verified", "created_at", "updated_at")
	return doc
}

func transformCategory(record map[string]any) map[string]any {
	doc := make(map[string]any)
	copyFields(doc, record,
		"name", "slug", "description", "parent_id", "position",
		"listings_count", "created_at", "updated_at")

	if v, ok := nested(record, "parent", "name"); ok {
		doc["parent_name"] = v
	}
	return doc
}
