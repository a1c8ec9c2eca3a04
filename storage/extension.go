package storage

import "strings"

type allowedType struct {
	ext  string
	mime string
}

// allowedTypes is ordered: content-type lookups take the first match, so
// image/jpeg resolves to jpg.
var allowedTypes = []allowedType{
	{"png", "image/png"},
	{"jpg", "image/jpeg"},
	{"jpeg", "image/jpeg"},
	{"gif", "image/gif"},
	{"webp", "image/webp"},
	{"bmp", "image/bmp"},
}

// ResolveExtension picks the stored extension for an upload. An empty
// argument means the value was not supplied.
//
// A filename extension always wins. If the filename carries an extension
// outside the allow-list the upload is rejected without consulting the
// content type. Names without any dot (clipboard pastes such as "blob")
// fall through to the content type.
func ResolveExtension(filename, contentType string) (string, bool) {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		ext := strings.ToLower(filename[i+1:])
		if MimeForExtension(ext) != "" {
			return ext, true
		}
		return "", false
	}
	if contentType == "" {
		return "", false
	}
	for _, t := range allowedTypes {
		if t.mime == contentType {
			return t.ext, true
		}
	}
	return "", false
}

// MimeForExtension returns the canonical mime type of an allowed extension,
// or "" when the extension is not allowed.
func MimeForExtension(ext string) string {
	for _, t := range allowedTypes {
		if t.ext == ext {
			return t.mime
		}
	}
	return ""
}

// IsAllowedMime reports whether mime is one of the allow-list types.
func IsAllowedMime(mime string) bool {
	for _, t := range allowedTypes {
		if t.mime == mime {
			return true
		}
	}
	return false
}
