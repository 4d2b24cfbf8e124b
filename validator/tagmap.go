package validator

var tagMap = map[string]string{
	"required": "required",
	"e164":     "invalid_phone",
	"url":      "invalid_url",
	"http_url": "invalid_http_url",
	"max":      "too_long",
	"min":      "too_short",
	"lte":      "too_large_or_equal",
	"gte":      "too_small_or_equal",
	"len":      "invalid_length",
	"oneof":    "invalid_choice",
	"numeric":  "only_numbers_allowed",
}

func mapTagToCode(tag string) string {
	if code, ok := tagMap[tag]; ok {
		return code
	}
	return "invalid"
}
