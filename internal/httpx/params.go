package httpx

import (
	"net/http"
	"net/url"

	"github.com/gorilla/schema"
)

// Params decodes the query parameters of a GET request into the given struct.
func Params(r *http.Request, v interface{}) error {
	values, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return Error(http.StatusBadRequest, err)
	}
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	if err := dec.Decode(v, values); err != nil {
		return Error(http.StatusBadRequest, err)
	}
	return nil
}
