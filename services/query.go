package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"civicspot/apperr"
	"civicspot/models"
)

const (
	DefaultPage     = 1
	DefaultLimit    = 10
	MaxLimit        = 100
	DefaultRadiusKm = 5.0
	MaxRadiusKm     = 100.0

	earthRadiusKm = 6378.1
)

var sortFields = map[string]string{
	"createdAt":   "createdAt",
	"updatedAt":   "updatedAt",
	"upvoteCount": "upvoteCount",
	"priority":    "priority",
	"status":      "status",
	"category":    "category",
	"title":       "title",
}

// BuildListQuery turns a raw list request into a store query. Only active
// reports are ever listed.
func BuildListQuery(f models.ListFilter) (models.ListQuery, error) {
	filter := bson.M{"isActive": true}

	if v := strings.TrimSpace(f.Category); v != "" {
		if !models.Category(v).Valid() {
			return models.ListQuery{}, invalidParam("category", v)
		}
		filter["category"] = v
	}
	if v := strings.TrimSpace(f.Status); v != "" {
		if !models.Status(v).Valid() {
			return models.ListQuery{}, invalidParam("status", v)
		}
		filter["status"] = v
	}
	if v := strings.TrimSpace(f.Priority); v != "" {
		if !models.Priority(v).Valid() {
			return models.ListQuery{}, invalidParam("priority", v)
		}
		filter["priority"] = v
	}
	if v := strings.TrimSpace(f.Search); v != "" {
		pattern := regexp.QuoteMeta(v)
		filter["$or"] = []bson.M{
			{"title": bson.M{"$regex": pattern, "$options": "i"}},
			{"description": bson.M{"$regex": pattern, "$options": "i"}},
			{"location.address": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	if strings.TrimSpace(f.Near) != "" {
		geo, err := nearFilter(f.Near, f.RadiusKm)
		if err != nil {
			return models.ListQuery{}, err
		}
		filter["location.point"] = geo
	}

	sort, err := ParseSort(f.Sort)
	if err != nil {
		return models.ListQuery{}, err
	}
	page, err := positiveInt("page", f.Page, DefaultPage)
	if err != nil {
		return models.ListQuery{}, err
	}
	limit, err := positiveInt("limit", f.Limit, DefaultLimit)
	if err != nil {
		return models.ListQuery{}, err
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if int64(page-1) > math.MaxInt64/int64(limit) {
		return models.ListQuery{}, apperr.ValidationFields(
			"page is out of range",
			map[string]string{"page": "is out of range"},
		)
	}

	return models.ListQuery{Filter: filter, Sort: sort, Page: page, Limit: limit}, nil
}

// ParseSort reads a comma or space separated list of keys, each optionally
// prefixed with "-" for descending. The default is newest first. _id is
// always appended so pages are stable.
func ParseSort(raw string) (bson.D, error) {
	keys := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	if len(keys) == 0 {
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}, nil
	}

	sort := bson.D{}
	seen := map[string]bool{}
	last := 1
	for _, k := range keys {
		dir := 1
		if strings.HasPrefix(k, "-") {
			dir = -1
			k = k[1:]
		} else {
			k = strings.TrimPrefix(k, "+")
		}
		field, ok := sortFields[k]
		if !ok {
			return nil, invalidParam("sort", k)
		}
		if seen[field] {
			continue
		}
		seen[field] = true
		sort = append(sort, bson.E{Key: field, Value: dir})
		last = dir
	}
	return append(sort, bson.E{Key: "_id", Value: last}), nil
}

// nearFilter builds a $geoWithin/$centerSphere predicate from "lat,lng".
func nearFilter(near, radius string) (bson.M, error) {
	parts := strings.Split(near, ",")
	if len(parts) != 2 {
		return nil, invalidParam("near", near)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, invalidParam("near", near)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, invalidParam("near", near)
	}

	km := DefaultRadiusKm
	if r := strings.TrimSpace(radius); r != "" {
		km, err = strconv.ParseFloat(r, 64)
		if err != nil || km <= 0 {
			return nil, invalidParam("radiusKm", r)
		}
		if km > MaxRadiusKm {
			km = MaxRadiusKm
		}
	}

	return bson.M{"$geoWithin": bson.M{
		"$centerSphere": bson.A{bson.A{lng, lat}, km / earthRadiusKm},
	}}, nil
}

func positiveInt(name, raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.ValidationFields(
			fmt.Sprintf("%s must be a positive integer", name),
			map[string]string{name: "must be a positive integer"},
		)
	}
	return n, nil
}

func invalidParam(name, value string) error {
	return apperr.ValidationFields(
		fmt.Sprintf("invalid %s: %q", name, value),
		map[string]string{name: "is invalid"},
	)
}

// TotalPages is ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
