package ingest

import "sitepulse/api/models"

// untrustedFields never reach a table as sent by the tracker.
var untrustedFields = []string{
	"table",
	"user_id", "userId", "owner_id", "ownerId",
	"site_id", "siteId",
	"site",
}

// relationFields are join-shaped hints: a key named after a relation whose
// value is an embedded object or list.
var relationFields = []string{"sites", "site_pages", "users", "pageviews", "initiate_checkouts", "purchases"}

// Sanitize returns a copy of evt without client-controlled ownership and
// relation fields, with the resolved site id and the server owner id set.
func Sanitize(evt models.Event, siteID, ownerID string) models.Event {
	out := evt.Clone()
	for _, key := range untrustedFields {
		delete(out, key)
	}
	for _, key := range relationFields {
		switch out[key].(type) {
		case map[string]any, []any:
			delete(out, key)
		}
	}
	out["site_id"] = siteID
	out["user_id"] = ownerID
	return out
}
