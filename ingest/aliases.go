package ingest

// fieldAliases maps tracker field names to column names. The original key is
// kept next to the canonical one so nothing the tracker sent is lost.
var fieldAliases = map[string]string{
	// ids
	"siteId":    "site_id",
	"visitorId": "visitor_id",
	"sessionId": "session_id",
	"userId":    "user_id",

	// screen / device
	"screenWidth":       "screen_width",
	"screenHeight":      "screen_height",
	"viewportWidth":     "viewport_width",
	"viewportHeight":    "viewport_height",
	"deviceType":        "device_type",
	"client_user_agent": "user_agent",

	// content / product
	"content_name":     "product_name",
	"content_category": "product_category",
	"title":            "page_title",
	"value":            "price_value",
	"currency":         "price_currency",

	// url / navigation
	"url":      "url_full",
	"path":     "url_path",
	"referrer": "referrer_url",
}

// eventTypeTables maps an upper-cased eventType to its table.
var eventTypeTables = map[string]string{
	"PURCHASE":          "purchases",
	"INITIATE_CHECKOUT": "initiate_checkouts",
	"PAGEVIEW":          "pageviews",
	"PAGE_VIEW":         "pageviews",
}

// eventTypeFields are the keys a tracker may use to name the event kind.
var eventTypeFields = []string{"eventType", "event_type"}
