// Package wellknown serves the discovery endpoints remote instances use to
// find local actors.
package wellknown

import (
	"io"
	"net/http"
)

// RobotsTxt keeps crawlers away from the federation surface.
func RobotsTxt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "User-agent: *\nDisallow: /\n")
}
