// Package config loads repository configuration from YAML or CUE files.
//
// Struct tags drive validation (go-playground/validator); Validate adds the
// cross-field rules, such as the feed settings a kafka-master index backend
// needs. Load applies defaults before validating, so a minimal file names
// only the repository and its workspaces.
package config
