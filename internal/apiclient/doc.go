// Package apiclient binds the geospatial detection service HTTP API.
//
// Client wraps two resty clients: one authenticated against the API base URL
// and one for presigned storage URLs that must never receive credentials. It
// exposes JSON request helpers, next-link pagination, operation polling with
// exponential backoff, and streaming uploads and downloads. Typed errors
// describe every failure class so callers can branch with errors.As.
package apiclient
