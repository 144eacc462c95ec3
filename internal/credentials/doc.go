// Package credentials resolves the API key from declarative sources such as
// "env:GEODETECT_API_KEY" or "file:~/.geodetect/api_key".
package credentials
