package pipeline

import "strings"

// AdapterExtension is the conventional file extension of catalog adapter names.
const AdapterExtension = ".safetensors"

// ResolveAdapter matches a requested adapter name against the backend catalog:
// exact name, then name plus AdapterExtension, then case-insensitive substring,
// then the first catalog entry. It returns false only for an empty catalog.
func ResolveAdapter(requested string, catalog []string) (string, bool) {
	if len(catalog) == 0 {
		return "", false
	}
	for _, name := range catalog {
		if name == requested {
			return name, true
		}
	}
	withExt := requested + AdapterExtension
	for _, name := range catalog {
		if name == withExt {
			return name, true
		}
	}
	needle := strings.ToLower(requested)
	for _, name := range catalog {
		if strings.Contains(strings.ToLower(name), needle) {
			return name, true
		}
	}
	return catalog[0], true
}

// DisplayName strips known model-file extensions from a catalog name.
func DisplayName(catalogName string) string {
	name := strings.TrimSuffix(catalogName, AdapterExtension)
	return strings.TrimSuffix(name, ".ckpt")
}
