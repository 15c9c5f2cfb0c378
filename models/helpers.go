package models

import (
	"fmt"
	"net/url"
)

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func boolFromAny(v any) bool {
	b, _ := v.(bool)
	return b
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func domainOf(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", uri)
	}
	return u.Host, nil
}
