// Package namespace defines where an identity's member data lives in the
// document store and in the object store.
//
// Layout:
//
//	users/{uid}                          member profile document
//	users/{uid}/reports/{reportId}       report metadata record
//	users/{uid}/reports/{reportId}/...   stored report objects (object store keys)
package namespace

import (
	"fmt"
	"strings"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
)

const (
	usersCollection   = "users"
	reportsCollection = "reports"
)

// UserDocument returns the profile document of uid.
func UserDocument(uid string) document.Reference {
	return document.Doc(usersCollection, uid)
}

// Reports returns the report metadata collection of uid.
func Reports(uid string) document.Reference {
	return document.Collection(usersCollection, uid, reportsCollection)
}

// Report returns the metadata record of one report.
func Report(uid, reportID string) (document.Reference, error) {
	return Reports(uid).Child(reportID)
}

// ReportObjectPrefix returns the object store key prefix holding the stored
// objects of one report. The prefix always ends with a slash so that
// "r1" never matches objects of "r10".
func ReportObjectPrefix(uid, reportID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/", usersCollection, uid, reportsCollection, reportID)
}

// ReportIDFromKey extracts the report id from an object key under the
// namespace of uid. It returns false for keys outside that namespace.
func ReportIDFromKey(uid, key string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/%s/", usersCollection, uid, reportsCollection)
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}
